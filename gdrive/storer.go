// Package gdrive implements a driveup.Storer backed by the Google Drive v3
// API, authenticated as a service account.
package gdrive

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"impractical.co/driveup"
	"yall.in"
)

// DefaultScope only grants access to files created by the service account
// or explicitly shared with it.
const DefaultScope = drive.DriveFileScope

var _ driveup.Storer = &Storer{}

// Option configures a Storer.
type Option func(*options)

type options struct {
	scopes     []string
	httpClient *http.Client
	endpoint   string
	digest     string
}

// WithScopes overrides the OAuth2 scopes requested for the service
// account.
func WithScopes(scopes ...string) Option {
	return func(o *options) {
		o.scopes = scopes
	}
}

// WithHTTPClient makes every request with client instead of an
// authenticated client built from the credentials.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEndpoint sends requests to endpoint instead of the public Drive API.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithDigest selects which of the checksums Drive computes is reported as
// driveup.Node.Digest: "md5" (the default), "sha1", or "sha256".
func WithDigest(algorithm string) Option {
	return func(o *options) {
		o.digest = algorithm
	}
}

var digestFields = map[string]string{
	"md5":    "md5Checksum",
	"sha1":   "sha1Checksum",
	"sha256": "sha256Checksum",
}

// DigestAlgorithms returns the names of the algorithms WithDigest accepts.
func DigestAlgorithms() []string {
	names := make([]string, 0, len(digestFields))
	for name := range digestFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Storer stores files in Google Drive.
type Storer struct {
	svc         *drive.Service
	digest      string
	digestField string
}

// New returns a Storer authenticated with the service account
// credentialsJSON.
func New(ctx context.Context, credentialsJSON []byte, opts ...Option) (*Storer, error) {
	o := options{scopes: []string{DefaultScope}, digest: "md5"}
	for _, opt := range opts {
		opt(&o)
	}
	digest, err := driveup.NewHasher(o.digest)
	if err != nil {
		return nil, err
	}
	field, ok := digestFields[digest.Algorithm()]
	if !ok {
		return nil, fmt.Errorf("%w: Drive doesn't report %q checksums", driveup.ErrUnsupportedAlgorithm, o.digest)
	}

	var clientOpts []option.ClientOption
	if o.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	} else {
		conf, err := google.JWTConfigFromJSON(credentialsJSON, o.scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: error processing credentials: %s", ErrInvalidCredentials, err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(conf.TokenSource(ctx)))
	}
	if o.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(o.endpoint))
	}

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error creating Drive client: %w", err)
	}
	return &Storer{svc: svc, digest: digest.Algorithm(), digestField: field}, nil
}

// DigestAlgorithm implements driveup.Storer.
func (s *Storer) DigestAlgorithm() string {
	return s.digest
}

func (s *Storer) fileFields() string {
	return "id,name,mimeType,parents," + s.digestField
}

func (s *Storer) toNode(f *drive.File) driveup.Node {
	n := driveup.Node{
		ID:   f.Id,
		Name: f.Name,
		Kind: driveup.KindFile,
	}
	if f.MimeType == folderMimeType {
		n.Kind = driveup.KindFolder
	}
	if len(f.Parents) > 0 {
		n.ParentID = f.Parents[0]
	}
	if n.Kind == driveup.KindFile {
		switch s.digestField {
		case "md5Checksum":
			n.Digest = f.Md5Checksum
		case "sha1Checksum":
			n.Digest = f.Sha1Checksum
		case "sha256Checksum":
			n.Digest = f.Sha256Checksum
		}
		n.Digest = strings.ToLower(n.Digest)
	}
	return n
}

// List implements driveup.Storer. Items in shared drives are included.
func (s *Storer) List(ctx context.Context, q driveup.Query) ([]driveup.Node, error) {
	query := buildQuery(q)
	log := yall.FromContext(ctx).WithField("gdrive.query", query)
	log.Debug("[gdrive] listing files")

	list := s.svc.Files.List().
		Q(query).
		Corpora("allDrives").
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Fields(googleapi.Field(fmt.Sprintf("nextPageToken,files(%s)", s.fileFields()))).
		Context(ctx)

	var nodes []driveup.Node
	for {
		files, err := list.Do()
		if err != nil {
			return nil, fmt.Errorf("error listing files: %w", err)
		}
		for _, f := range files.Files {
			// the = operator in queries is case insensitive
			if f.Name != q.Name {
				continue
			}
			nodes = append(nodes, s.toNode(f))
		}
		if files.NextPageToken == "" {
			break
		}
		list.PageToken(files.NextPageToken)
	}
	log.WithField("gdrive.matches", len(nodes)).Debug("[gdrive] listed files")
	return nodes, nil
}

// CreateFolder implements driveup.Storer.
func (s *Storer) CreateFolder(ctx context.Context, parentID, name string) (driveup.Node, error) {
	yall.FromContext(ctx).Debug("[gdrive] creating folder")
	info, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).
		Fields("id,name,mimeType,parents").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return driveup.Node{}, err
	}
	return s.toNode(info), nil
}

// CreateFile implements driveup.Storer. The body is sent in a single
// request.
func (s *Storer) CreateFile(ctx context.Context, parentID, name string, body driveup.Body) (driveup.Node, error) {
	log := yall.FromContext(ctx)
	log = log.WithField("gdrive.content_type", body.ContentType)
	log = log.WithField("gdrive.size", body.Size)
	log.Debug("[gdrive] uploading new file")
	info, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: body.ContentType,
		Parents:  []string{parentID},
	}).
		Media(body.Reader, googleapi.ContentType(body.ContentType), googleapi.ChunkSize(0)).
		Fields(googleapi.Field(s.fileFields())).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return driveup.Node{}, err
	}
	return s.toNode(info), nil
}

// UpdateFile implements driveup.Storer. Only the content is changed; the
// file keeps its name and parents.
func (s *Storer) UpdateFile(ctx context.Context, id string, body driveup.Body) (driveup.Node, error) {
	log := yall.FromContext(ctx)
	log = log.WithField("gdrive.content_type", body.ContentType)
	log = log.WithField("gdrive.size", body.Size)
	log.Debug("[gdrive] uploading new file content")
	info, err := s.svc.Files.Update(id, &drive.File{
		MimeType: body.ContentType,
	}).
		Media(body.Reader, googleapi.ContentType(body.ContentType), googleapi.ChunkSize(0)).
		Fields(googleapi.Field(s.fileFields())).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return driveup.Node{}, err
	}
	return s.toNode(info), nil
}
