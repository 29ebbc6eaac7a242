package driveup

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMissingInput is returned when a Request is missing a required
	// field. It is returned before any remote call is made.
	ErrMissingInput = errors.New("missing required input")

	// ErrAmbiguous is returned when more than one remote node of the
	// same kind shares a name under a single parent.
	ErrAmbiguous = errors.New("more than one entry matches the name")

	// ErrAlreadyExists is returned when a file is already present and
	// overwriting was not requested.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrIntegrity is returned when the digest reported by the Storer
	// after a transfer doesn't match the digest of the local file.
	ErrIntegrity = errors.New("upload integrity check failed")

	// ErrNoID is returned when the Storer creates a node but doesn't
	// report an identifier for it.
	ErrNoID = errors.New("remote node created without an identifier")
)

// Kind is the type of a remote node.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Node represents a file or folder stored remotely.
type Node struct {
	ID       string
	Name     string
	Kind     Kind
	ParentID string

	// Digest is the hex-encoded content digest reported by the Storer,
	// using the Storer's DigestAlgorithm. It is only set for files.
	Digest string
}

// Query selects the children of ParentID named Name with the given Kind.
// Storers must only return nodes that are not trashed, and must search
// every drive the credentials can access.
type Query struct {
	ParentID string
	Name     string
	Kind     Kind
}

// Body is the content streamed to a Storer when creating or updating a
// file.
type Body struct {
	Reader      io.Reader
	ContentType string
	Size        int64
}

// Storer represents the remote hierarchical storage files are uploaded to.
type Storer interface {
	List(ctx context.Context, q Query) ([]Node, error)
	CreateFolder(ctx context.Context, parentID, name string) (Node, error)
	CreateFile(ctx context.Context, parentID, name string, body Body) (Node, error)
	UpdateFile(ctx context.Context, id string, body Body) (Node, error)

	// DigestAlgorithm returns the name of the hash algorithm used for
	// Node.Digest, in the form accepted by NewHasher.
	DigestAlgorithm() string
}

// AmbiguousError is returned when a lookup matches more than one node.
type AmbiguousError struct {
	Name     string
	ParentID string
	Kind     Kind
	Count    int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("more than one %s (%d) match the name %q under folder %q", e.Kind, e.Count, e.Name, e.ParentID)
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// ConflictError is returned when uploading to a file that exists without
// overwriting enabled.
type ConflictError struct {
	Name     string
	ParentID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("file %q already exists under folder %q and overwrite is disabled", e.Name, e.ParentID)
}

func (e *ConflictError) Unwrap() error { return ErrAlreadyExists }

// IntegrityError describes a digest mismatch after an upload. The remote
// node identified by ID is left in place.
type IntegrityError struct {
	Name      string
	ID        string
	Algorithm string
	Local     string
	Remote    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s digest mismatch for %q (id %q): local %q, remote %q", e.Algorithm, e.Name, e.ID, e.Local, e.Remote)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// MatchState is the outcome of a name lookup.
type MatchState int

const (
	MatchNone MatchState = iota
	MatchOne
	MatchMany
)

func (m MatchState) String() string {
	switch m {
	case MatchNone:
		return "none"
	case MatchOne:
		return "one"
	case MatchMany:
		return "many"
	}
	return fmt.Sprintf("MatchState(%d)", int(m))
}

// Match is the classified result of a Storer.List call. Node is only set
// when State is MatchOne; Count is the number of nodes listed.
type Match struct {
	State MatchState
	Node  Node
	Count int
}

// Classify turns a listing into a Match.
func Classify(nodes []Node) Match {
	switch len(nodes) {
	case 0:
		return Match{State: MatchNone}
	case 1:
		return Match{State: MatchOne, Node: nodes[0], Count: 1}
	default:
		return Match{State: MatchMany, Count: len(nodes)}
	}
}

func lookup(ctx context.Context, s Storer, q Query) (Match, error) {
	nodes, err := s.List(ctx, q)
	if err != nil {
		return Match{}, fmt.Errorf("error listing %s %q under folder %q: %w", q.Kind, q.Name, q.ParentID, err)
	}
	return Classify(nodes), nil
}
