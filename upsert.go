package driveup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"impractical.co/driveup/magicnumber"
	"yall.in"
)

// Upserter creates or updates a single file inside an already-resolved
// folder, verifying every transfer with Integrity.
type Upserter struct {
	// Integrity is used to hash the local file after a transfer. Its
	// algorithm must match the Storer's DigestAlgorithm.
	Integrity Hasher
}

// Upsert uploads the file at sourcePath as name inside the folder
// parentID, returning the ID of the remote file.
//
// If no file named name exists, it is created. If exactly one exists, it
// is updated in place when overwrite is true, and a *ConflictError is
// returned otherwise. If more than one exists, an *AmbiguousError is
// returned without modifying anything.
//
// After every create or update, the digest the Storer reports is compared
// to the digest of sourcePath; a mismatch returns an *IntegrityError and
// leaves the remote file as it is.
func (u Upserter) Upsert(ctx context.Context, s Storer, parentID, name, sourcePath string, overwrite bool) (string, error) {
	log := yall.FromContext(ctx)
	log = log.WithField("driveup.storer", fmt.Sprintf("%T", s))
	log = log.WithField("driveup.parent_id", parentID)
	log = log.WithField("driveup.file", name)
	log = log.WithField("driveup.source", sourcePath)
	log = log.WithField("driveup.overwrite", overwrite)

	if !strings.EqualFold(u.Integrity.Algorithm(), s.DigestAlgorithm()) {
		return "", fmt.Errorf("%w: %T reports %q digests, integrity hasher uses %q", ErrUnsupportedAlgorithm, s, s.DigestAlgorithm(), u.Integrity.Algorithm())
	}

	match, err := lookup(ctx, s, Query{ParentID: parentID, Name: name, Kind: KindFile})
	if err != nil {
		return "", err
	}
	log = log.WithField("driveup.match", match.State.String())
	ctx = yall.InContext(ctx, log)

	var node Node
	switch match.State {
	case MatchNone:
		log.Debug("[driveup] creating file")
		node, err = transfer(sourcePath, func(body Body) (Node, error) {
			return s.CreateFile(ctx, parentID, name, body)
		})
		if err != nil {
			return "", fmt.Errorf("error creating file %q under folder %q: %w", name, parentID, err)
		}
		if node.ID == "" {
			return "", fmt.Errorf("error creating file %q under folder %q: %w", name, parentID, ErrNoID)
		}
	case MatchOne:
		if !overwrite {
			return "", &ConflictError{Name: name, ParentID: parentID}
		}
		id := match.Node.ID
		log.WithField("driveup.file_id", id).Debug("[driveup] updating existing file")
		node, err = transfer(sourcePath, func(body Body) (Node, error) {
			return s.UpdateFile(ctx, id, body)
		})
		if err != nil {
			return "", fmt.Errorf("error updating file %q (%s): %w", name, id, err)
		}
		if node.ID == "" {
			node.ID = id
		}
	case MatchMany:
		return "", &AmbiguousError{Name: name, ParentID: parentID, Kind: KindFile, Count: match.Count}
	default:
		return "", fmt.Errorf("unexpected match state %s", match.State)
	}

	log = log.WithField("driveup.file_id", node.ID)
	local, err := u.Integrity.HashFile(sourcePath)
	if err != nil {
		return "", err
	}
	log = log.WithField("driveup.local_digest", local)
	log = log.WithField("driveup.remote_digest", node.Digest)
	if !strings.EqualFold(local, node.Digest) {
		log.Debug("[driveup] digest mismatch, leaving remote file in place")
		return "", &IntegrityError{
			Name:      name,
			ID:        node.ID,
			Algorithm: u.Integrity.Algorithm(),
			Local:     local,
			Remote:    node.Digest,
		}
	}
	log.Debug("[driveup] upload verified")
	return node.ID, nil
}

// transfer opens sourcePath, detects its content type, and hands the
// streamed body to send. The file is closed before transfer returns.
func transfer(sourcePath string, send func(Body) (Node, error)) (Node, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return Node{}, fmt.Errorf("error opening %s: %w", sourcePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Node{}, fmt.Errorf("error stating %s: %w", sourcePath, err)
	}
	if info.IsDir() {
		return Node{}, fmt.Errorf("error uploading %s: is a directory", sourcePath)
	}

	contentType, r, err := magicnumber.Peek(f)
	if err != nil {
		return Node{}, fmt.Errorf("error reading %s: %w", sourcePath, err)
	}
	return send(Body{Reader: r, ContentType: contentType, Size: info.Size()})
}
