package memory

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Factory creates memory Storers for tests.
type Factory struct {
	// Algorithm is the digest algorithm the Storers report. Defaults to
	// md5, like Google Drive.
	Algorithm string
}

func (f Factory) NewStorer(ctx context.Context) (*Storer, error) {
	algorithm := f.Algorithm
	if algorithm == "" {
		algorithm = "md5"
	}
	return NewStorer(algorithm)
}

func (f Factory) TeardownStorers() error {
	return nil
}

// Inject stores n as-is, bypassing the name checks a real service would
// make, so tests can set up states like duplicate names. If n.ID is
// empty, a new one is assigned. The stored ID is returned.
func (s *Storer) Inject(n Node) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("node", &n); err != nil {
		return "", err
	}
	txn.Commit()
	return n.ID, nil
}

// Trash marks the node with the given ID as trashed, hiding it from List.
func (s *Storer) Trash(id string) error {
	n, err := s.Get(id)
	if err != nil {
		return err
	}
	n.Trashed = true
	_, err = s.Inject(n)
	return err
}

// CorruptDigests makes the Storer report wrong digests for every file
// created or updated while enabled.
func (s *Storer) CorruptDigests(enabled bool) {
	var v int32
	if enabled {
		v = 1
	}
	atomic.StoreInt32(&s.corrupt, v)
}

// Creates returns the number of folders and files created.
func (s *Storer) Creates() int {
	return int(atomic.LoadInt64(&s.creates))
}

// Updates returns the number of files updated.
func (s *Storer) Updates() int {
	return int(atomic.LoadInt64(&s.updates))
}
