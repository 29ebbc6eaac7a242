package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"
	"impractical.co/driveup"
	"yall.in"
)

// RootID is the ID of the folder every Storer starts with.
const RootID = "root"

// ErrNotFound is returned when a node ID doesn't exist in the Storer.
var ErrNotFound = errors.New("node not found")

var _ driveup.Storer = &Storer{}

var (
	schema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"node": &memdb.TableSchema{
				Name: "node",
				Indexes: map[string]*memdb.IndexSchema{
					"id": &memdb.IndexSchema{
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"parent_name": &memdb.IndexSchema{
						Name:         "parent_name",
						AllowMissing: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "ParentID"},
								&memdb.StringFieldIndex{Field: "Name"},
							},
						},
					},
				},
			},
		},
	}
)

// Node is a file or folder held in memory.
type Node struct {
	ID          string
	Name        string
	Kind        driveup.Kind
	ParentID    string
	Trashed     bool
	ContentType string
	Contents    []byte
	Digest      string
}

func (n *Node) public() driveup.Node {
	return driveup.Node{
		ID:       n.ID,
		Name:     n.Name,
		Kind:     n.Kind,
		ParentID: n.ParentID,
		Digest:   n.Digest,
	}
}

// Storer is a driveup.Storer that keeps every node in memory. It is used
// for dry runs and tests.
type Storer struct {
	creates int64
	updates int64
	corrupt int32

	db     *memdb.MemDB
	hasher driveup.Hasher
}

// NewStorer returns a Storer containing only the root folder, reporting
// digests using algorithm.
func NewStorer(algorithm string) (*Storer, error) {
	hasher, err := driveup.NewHasher(algorithm)
	if err != nil {
		return nil, err
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, err
	}
	txn := db.Txn(true)
	defer txn.Abort()
	err = txn.Insert("node", &Node{ID: RootID, Name: RootID, Kind: driveup.KindFolder})
	if err != nil {
		return nil, err
	}
	txn.Commit()
	return &Storer{
		db:     db,
		hasher: hasher,
	}, nil
}

// DigestAlgorithm implements driveup.Storer.
func (s *Storer) DigestAlgorithm() string {
	return s.hasher.Algorithm()
}

// List implements driveup.Storer.
func (s *Storer) List(ctx context.Context, q driveup.Query) ([]driveup.Node, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get("node", "parent_name", q.ParentID, q.Name)
	if err != nil {
		return nil, err
	}
	var nodes []driveup.Node
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n := obj.(*Node)
		if n.Trashed || n.Kind != q.Kind || n.Name != q.Name {
			continue
		}
		nodes = append(nodes, n.public())
	}
	yall.FromContext(ctx).WithField("memory.matches", len(nodes)).Debug("[memory] listed nodes")
	return nodes, nil
}

// CreateFolder implements driveup.Storer.
func (s *Storer) CreateFolder(ctx context.Context, parentID, name string) (driveup.Node, error) {
	n := &Node{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     driveup.KindFolder,
		ParentID: parentID,
	}
	if err := s.insert(n); err != nil {
		return driveup.Node{}, err
	}
	atomic.AddInt64(&s.creates, 1)
	return n.public(), nil
}

// CreateFile implements driveup.Storer.
func (s *Storer) CreateFile(ctx context.Context, parentID, name string, body driveup.Body) (driveup.Node, error) {
	n := &Node{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     driveup.KindFile,
		ParentID: parentID,
	}
	if err := s.fill(n, body); err != nil {
		return driveup.Node{}, err
	}
	if err := s.insert(n); err != nil {
		return driveup.Node{}, err
	}
	atomic.AddInt64(&s.creates, 1)
	return n.public(), nil
}

// UpdateFile implements driveup.Storer.
func (s *Storer) UpdateFile(ctx context.Context, id string, body driveup.Body) (driveup.Node, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	res, err := txn.First("node", "id", id)
	if err != nil {
		return driveup.Node{}, err
	}
	if res == nil {
		return driveup.Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	existing := res.(*Node)
	if existing.Kind != driveup.KindFile {
		return driveup.Node{}, fmt.Errorf("can't update %s: not a file", id)
	}
	// objects in memdb must not be modified in place
	updated := *existing
	if err := s.fill(&updated, body); err != nil {
		return driveup.Node{}, err
	}
	if err := txn.Insert("node", &updated); err != nil {
		return driveup.Node{}, err
	}
	txn.Commit()
	atomic.AddInt64(&s.updates, 1)
	return updated.public(), nil
}

func (s *Storer) fill(n *Node, body driveup.Body) error {
	contents, err := io.ReadAll(body.Reader)
	if err != nil {
		return fmt.Errorf("error reading upload body: %w", err)
	}
	digest, err := s.hasher.Hash(bytes.NewReader(contents))
	if err != nil {
		return err
	}
	if atomic.LoadInt32(&s.corrupt) == 1 {
		digest = "corrupt-" + digest
	}
	n.Contents = contents
	n.ContentType = body.ContentType
	n.Digest = digest
	return nil
}

func (s *Storer) insert(n *Node) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	parent, err := txn.First("node", "id", n.ParentID)
	if err != nil {
		return err
	}
	if parent == nil || parent.(*Node).Trashed {
		return fmt.Errorf("%w: parent %s", ErrNotFound, n.ParentID)
	}
	if parent.(*Node).Kind != driveup.KindFolder {
		return fmt.Errorf("parent %s is not a folder", n.ParentID)
	}
	if err := txn.Insert("node", n); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Get returns the node with the given ID.
func (s *Storer) Get(id string) (Node, error) {
	txn := s.db.Txn(false)
	res, err := txn.First("node", "id", id)
	if err != nil {
		return Node{}, err
	}
	if res == nil {
		return Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *res.(*Node), nil
}

// Nodes returns every node except the root, ordered by ID.
func (s *Storer) Nodes() ([]Node, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get("node", "id")
	if err != nil {
		return nil, err
	}
	var nodes []Node
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n := obj.(*Node)
		if n.ID == RootID {
			continue
		}
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}
