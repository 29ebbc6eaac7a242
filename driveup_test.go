package driveup_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"

	"impractical.co/driveup"
	"impractical.co/driveup/memory"
	yall "yall.in"
	"yall.in/colour"
)

type Factory interface {
	NewStorer(ctx context.Context) (*memory.Storer, error)
	TeardownStorers() error
}

var factories []Factory

func TestMain(m *testing.M) {
	flag.Parse()

	// set up our test storers
	factories = append(factories, memory.Factory{}, memory.Factory{Algorithm: "sha256"})

	// run the tests
	result := m.Run()

	// tear down all the storers we created
	for _, factory := range factories {
		err := factory.TeardownStorers()
		if err != nil {
			log.Printf("Error cleaning up after %T: %+v\n", factory, err)
		}
	}

	// return the test result
	os.Exit(result)
}

func runTest(t *testing.T, f func(*testing.T, *memory.Storer, *driveup.Uploader, context.Context)) {
	t.Parallel()
	logger := yall.New(colour.New(os.Stdout, yall.Debug))
	for _, factory := range factories {
		ctx := yall.InContext(context.Background(), logger)
		storer, err := factory.NewStorer(ctx)
		if err != nil {
			t.Fatalf("Error creating Storer from %T: %+v\n", factory, err)
		}
		uploader, err := driveup.NewUploader(storer, "sha256")
		if err != nil {
			t.Fatalf("Error creating Uploader: %+v\n", err)
		}
		t.Run(fmt.Sprintf("Digest=%s", storer.DigestAlgorithm()), func(t *testing.T) {
			t.Parallel()
			f(t, storer, uploader, ctx)
		})
	}
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Error writing %s: %s", path, err)
	}
	return path
}

func mustGet(t *testing.T, storer *memory.Storer, id string) memory.Node {
	t.Helper()
	node, err := storer.Get(id)
	if err != nil {
		t.Fatalf("Error getting node %s: %s", id, err)
	}
	return node
}

func TestUploadCreateConflictOverwrite(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "report.txt", "quarterly numbers")
		req := driveup.Request{SourcePath: source, TargetPath: "docs/report.txt", ParentID: memory.RootID}

		id, err := uploader.Upload(ctx, req)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if storer.Creates() != 2 {
			t.Errorf("Expected 2 nodes to be created, got %d", storer.Creates())
		}
		file := mustGet(t, storer, id)
		if file.Name != "report.txt" || file.Kind != driveup.KindFile {
			t.Errorf("Expected file named report.txt, got %+v", file)
		}
		if string(file.Contents) != "quarterly numbers" {
			t.Errorf("Expected contents %q, got %q", "quarterly numbers", file.Contents)
		}
		docs := mustGet(t, storer, file.ParentID)
		if docs.Name != "docs" || docs.Kind != driveup.KindFolder || docs.ParentID != memory.RootID {
			t.Errorf("Expected folder docs under root, got %+v", docs)
		}

		_, err = uploader.Upload(ctx, req)
		var conflict *driveup.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("Expected a *driveup.ConflictError, got %v", err)
		}
		if !errors.Is(err, driveup.ErrAlreadyExists) {
			t.Errorf("Expected %q, got %q", driveup.ErrAlreadyExists, err)
		}
		if conflict.Name != "report.txt" || conflict.ParentID != docs.ID {
			t.Errorf("Expected conflict on report.txt in %s, got %+v", docs.ID, conflict)
		}
		if storer.Updates() != 0 {
			t.Errorf("Expected no updates, got %d", storer.Updates())
		}

		if err := os.WriteFile(source, []byte("revised numbers"), 0o600); err != nil {
			t.Fatalf("Error rewriting source: %s", err)
		}
		req.Overwrite = true
		updatedID, err := uploader.Upload(ctx, req)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if updatedID != id {
			t.Errorf("Expected overwrite to keep ID %q, got %q", id, updatedID)
		}
		if storer.Creates() != 2 || storer.Updates() != 1 {
			t.Errorf("Expected 2 creates and 1 update, got %d and %d", storer.Creates(), storer.Updates())
		}
		if got := mustGet(t, storer, id).Contents; string(got) != "revised numbers" {
			t.Errorf("Expected contents %q, got %q", "revised numbers", got)
		}
	})
}

func TestResolvePathIdempotent(t *testing.T) {
	type resolveTest struct {
		folders []string
	}
	table := map[string]resolveTest{
		"single": {folders: []string{"a"}},
		"nested": {folders: []string{"a", "b", "c"}},
		"repeat": {folders: []string{"x", "x", "x"}},
	}
	for id, testcase := range table {
		id, testcase := id, testcase
		t.Run("ID="+id, func(t *testing.T) {
			runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
				first, err := driveup.ResolvePath(ctx, storer, memory.RootID, testcase.folders)
				if err != nil {
					t.Fatalf("Unexpected error: %s", err)
				}
				if storer.Creates() != len(testcase.folders) {
					t.Errorf("Expected %d folders created, got %d", len(testcase.folders), storer.Creates())
				}
				second, err := driveup.ResolvePath(ctx, storer, memory.RootID, testcase.folders)
				if err != nil {
					t.Fatalf("Unexpected error: %s", err)
				}
				if second != first {
					t.Errorf("Expected second resolution to return %q, got %q", first, second)
				}
				if storer.Creates() != len(testcase.folders) {
					t.Errorf("Expected no more folders created, got %d total", storer.Creates())
				}

				// walk back up from the innermost folder
				id := first
				for pos := len(testcase.folders) - 1; pos >= 0; pos-- {
					node := mustGet(t, storer, id)
					if node.Name != testcase.folders[pos] {
						t.Errorf("Expected folder %d to be %q, got %q", pos, testcase.folders[pos], node.Name)
					}
					id = node.ParentID
				}
				if id != memory.RootID {
					t.Errorf("Expected chain to end at root, ended at %q", id)
				}
			})
		})
	}
}

func TestResolvePathEmpty(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		id, err := driveup.ResolvePath(ctx, storer, memory.RootID, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if id != memory.RootID {
			t.Errorf("Expected %q, got %q", memory.RootID, id)
		}
		if storer.Creates() != 0 {
			t.Errorf("Expected nothing created, got %d", storer.Creates())
		}
	})
}

func TestResolveFolderAmbiguous(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		for i := 0; i < 2; i++ {
			if _, err := storer.Inject(memory.Node{Name: "dup", Kind: driveup.KindFolder, ParentID: memory.RootID}); err != nil {
				t.Fatalf("Error injecting folder: %s", err)
			}
		}
		_, err := driveup.ResolveFolder(ctx, storer, memory.RootID, "dup")
		var ambiguous *driveup.AmbiguousError
		if !errors.As(err, &ambiguous) {
			t.Fatalf("Expected *driveup.AmbiguousError, got %v", err)
		}
		if ambiguous.Count != 2 || ambiguous.Kind != driveup.KindFolder {
			t.Errorf("Expected 2 ambiguous folders, got %+v", ambiguous)
		}
		if storer.Creates() != 0 {
			t.Errorf("Expected nothing created, got %d", storer.Creates())
		}
	})
}

func TestResolveFolderIgnoresFilesAndTrash(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		if _, err := storer.Inject(memory.Node{Name: "logs", Kind: driveup.KindFile, ParentID: memory.RootID}); err != nil {
			t.Fatalf("Error injecting file: %s", err)
		}
		trashed, err := storer.Inject(memory.Node{Name: "logs", Kind: driveup.KindFolder, ParentID: memory.RootID})
		if err != nil {
			t.Fatalf("Error injecting folder: %s", err)
		}
		if err := storer.Trash(trashed); err != nil {
			t.Fatalf("Error trashing folder: %s", err)
		}
		id, err := driveup.ResolveFolder(ctx, storer, memory.RootID, "logs")
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if id == trashed {
			t.Errorf("Expected trashed folder to be ignored")
		}
		if storer.Creates() != 1 {
			t.Errorf("Expected a new folder to be created, got %d creates", storer.Creates())
		}
	})
}

func TestUploadAmbiguousLeaf(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		for i := 0; i < 3; i++ {
			if _, err := storer.Inject(memory.Node{Name: "notes.txt", Kind: driveup.KindFile, ParentID: memory.RootID}); err != nil {
				t.Fatalf("Error injecting file: %s", err)
			}
		}
		source := writeFile(t, "notes.txt", "hello, world")
		for _, overwrite := range []bool{false, true} {
			_, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID, Overwrite: overwrite})
			if !errors.Is(err, driveup.ErrAmbiguous) {
				t.Errorf("Expected %q with overwrite=%v, got %v", driveup.ErrAmbiguous, overwrite, err)
			}
		}
		if storer.Creates() != 0 || storer.Updates() != 0 {
			t.Errorf("Expected no creates or updates, got %d and %d", storer.Creates(), storer.Updates())
		}
	})
}

func TestUploadDefaultTarget(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "plain.txt", "hello, world")
		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		file := mustGet(t, storer, id)
		if file.Name != "plain.txt" || file.ParentID != memory.RootID {
			t.Errorf("Expected plain.txt under root, got %+v", file)
		}
		if storer.Creates() != 1 {
			t.Errorf("Expected only the file to be created, got %d creates", storer.Creates())
		}
	})
}

func TestUploadNestedTarget(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "local-name.txt", "hello, world")
		existingA, err := driveup.ResolveFolder(ctx, storer, memory.RootID, "a")
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, TargetPath: "a/b/c.txt", ParentID: memory.RootID})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		c := mustGet(t, storer, id)
		b := mustGet(t, storer, c.ParentID)
		if c.Name != "c.txt" || b.Name != "b" || b.ParentID != existingA {
			t.Errorf("Expected a/b/c.txt reusing folder a, got c=%+v b=%+v", c, b)
		}
		if storer.Creates() != 3 {
			t.Errorf("Expected a, b, and c.txt to be created once each, got %d creates", storer.Creates())
		}
	})
}

func TestUploadIntegrityFailure(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "data.bin", "hello, world")
		storer.CorruptDigests(true)
		_, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID})
		var integrity *driveup.IntegrityError
		if !errors.As(err, &integrity) {
			t.Fatalf("Expected *driveup.IntegrityError, got %v", err)
		}
		if integrity.Algorithm != storer.DigestAlgorithm() {
			t.Errorf("Expected algorithm %q, got %q", storer.DigestAlgorithm(), integrity.Algorithm)
		}
		// the corrupted upload stays where it is
		left, err := storer.Get(integrity.ID)
		if err != nil {
			t.Fatalf("Expected uploaded node to be left in place: %s", err)
		}
		if left.Name != "data.bin" {
			t.Errorf("Expected data.bin to be left in place, got %+v", left)
		}

		storer.CorruptDigests(false)
		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID, Overwrite: true})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if id != integrity.ID {
			t.Errorf("Expected overwrite of %q, got %q", integrity.ID, id)
		}
	})
}

func TestUploadChecksumSidecar(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "data.bin", "hello, world")

		// a stale sidecar already exists remotely; it must be overwritten
		stale, err := storer.Inject(memory.Node{Name: "data.bin.sha256", Kind: driveup.KindFile, ParentID: memory.RootID, Contents: []byte("stale")})
		if err != nil {
			t.Fatalf("Error injecting sidecar: %s", err)
		}

		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID, Checksum: true})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		file := mustGet(t, storer, id)
		if file.Name != "data.bin" {
			t.Errorf("Expected returned ID to be data.bin's, got %+v", file)
		}

		const sum = "09ca7e4eaa6e8ae9c7d261167129184883644d07dfba7cbfbc4c8a2e08360d5b"
		local, err := os.ReadFile(source + ".sha256")
		if err != nil {
			t.Fatalf("Expected local sidecar to be written: %s", err)
		}
		if string(local) != sum {
			t.Errorf("Expected local sidecar to contain %q, got %q", sum, local)
		}
		sidecar := mustGet(t, storer, stale)
		if string(sidecar.Contents) != sum {
			t.Errorf("Expected remote sidecar to contain %q, got %q", sum, sidecar.Contents)
		}
		if storer.Updates() != 1 {
			t.Errorf("Expected the sidecar to be updated once, got %d updates", storer.Updates())
		}
	})
}

func TestUploadChecksumSidecarNested(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "report.txt", "hello, world")
		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, TargetPath: "docs/report.txt", ParentID: memory.RootID, Checksum: true})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		docsID := mustGet(t, storer, id).ParentID
		nodes, err := storer.List(ctx, driveup.Query{ParentID: docsID, Name: "report.txt.sha256", Kind: driveup.KindFile})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if len(nodes) != 1 {
			t.Fatalf("Expected one sidecar next to report.txt, got %d", len(nodes))
		}
		// docs, report.txt, and the sidecar
		if storer.Creates() != 3 {
			t.Errorf("Expected 3 creates, got %d", storer.Creates())
		}
	})
}

func TestUploadMissingInput(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "x.txt", "x")
		table := map[string]driveup.Request{
			"no source": {ParentID: memory.RootID},
			"no parent": {SourcePath: source},
		}
		for label, req := range table {
			_, err := uploader.Upload(ctx, req)
			if !errors.Is(err, driveup.ErrMissingInput) {
				t.Errorf("%s: expected %q, got %v", label, driveup.ErrMissingInput, err)
			}
		}
		if storer.Creates() != 0 {
			t.Errorf("Expected nothing created, got %d", storer.Creates())
		}
	})
}

func TestUploadUnreadableSource(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		missing := filepath.Join(t.TempDir(), "missing.txt")
		_, err := uploader.Upload(ctx, driveup.Request{SourcePath: missing, ParentID: memory.RootID})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected %q, got %v", os.ErrNotExist, err)
		}
		if storer.Creates() != 0 {
			t.Errorf("Expected nothing created, got %d", storer.Creates())
		}
	})
}

func TestUpserterAlgorithmMismatch(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		hasher, err := driveup.NewHasher("sha512")
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		source := writeFile(t, "x.txt", "x")
		_, err = driveup.Upserter{Integrity: hasher}.Upsert(ctx, storer, memory.RootID, "x.txt", source, false)
		if !errors.Is(err, driveup.ErrUnsupportedAlgorithm) {
			t.Errorf("Expected %q, got %v", driveup.ErrUnsupportedAlgorithm, err)
		}
	})
}

// blankIDStorer forgets the IDs of the folders or files it creates.
type blankIDStorer struct {
	*memory.Storer
	folders bool
	files   bool
}

func (s blankIDStorer) CreateFolder(ctx context.Context, parentID, name string) (driveup.Node, error) {
	node, err := s.Storer.CreateFolder(ctx, parentID, name)
	if s.folders {
		node.ID = ""
	}
	return node, err
}

func (s blankIDStorer) CreateFile(ctx context.Context, parentID, name string, body driveup.Body) (driveup.Node, error) {
	node, err := s.Storer.CreateFile(ctx, parentID, name, body)
	if s.files {
		node.ID = ""
	}
	return node, err
}

func TestUploadCreateWithoutID(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "report.txt", "hello, world")
		table := map[string]struct {
			storer blankIDStorer
			target string
		}{
			"folder": {storer: blankIDStorer{Storer: storer, folders: true}, target: "folder-missing-id/report.txt"},
			"file":   {storer: blankIDStorer{Storer: storer, files: true}, target: "file-missing-id.txt"},
		}
		for label, testcase := range table {
			uploader, err := driveup.NewUploader(testcase.storer, "sha256")
			if err != nil {
				t.Fatalf("%s: error creating Uploader: %s", label, err)
			}
			id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, TargetPath: testcase.target, ParentID: memory.RootID})
			if !errors.Is(err, driveup.ErrNoID) {
				t.Errorf("%s: expected %q, got %v", label, driveup.ErrNoID, err)
			}
			if id != "" {
				t.Errorf("%s: expected no ID, got %q", label, id)
			}
		}
	})
}

func TestResolveFolderCreateWithoutID(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, _ *driveup.Uploader, ctx context.Context) {
		wrapped := blankIDStorer{Storer: storer, folders: true}
		_, err := driveup.ResolvePath(ctx, wrapped, memory.RootID, []string{"a", "b"})
		if !errors.Is(err, driveup.ErrNoID) {
			t.Errorf("Expected %q, got %v", driveup.ErrNoID, err)
		}
		if storer.Creates() != 1 {
			t.Errorf("Expected resolution to stop after the first folder, got %d creates", storer.Creates())
		}
	})
}

func TestUploadChecksumSidecarFailure(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "data.bin", "hello, world")
		for i := 0; i < 2; i++ {
			_, err := storer.Inject(memory.Node{Name: "data.bin.sha256", Kind: driveup.KindFile, ParentID: memory.RootID})
			if err != nil {
				t.Fatalf("Error injecting sidecar: %s", err)
			}
		}

		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, ParentID: memory.RootID, Checksum: true})
		if !errors.Is(err, driveup.ErrAmbiguous) {
			t.Fatalf("Expected %q, got %v", driveup.ErrAmbiguous, err)
		}
		if id != "" {
			t.Errorf("Expected no ID when the sidecar fails, got %q", id)
		}
		// the file itself was uploaded before the sidecar failed
		files, err := storer.List(ctx, driveup.Query{ParentID: memory.RootID, Name: "data.bin", Kind: driveup.KindFile})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if len(files) != 1 {
			t.Errorf("Expected data.bin to be uploaded, got %d matches", len(files))
		}
		if storer.Updates() != 0 {
			t.Errorf("Expected no sidecar to be updated, got %d updates", storer.Updates())
		}
	})
}

func TestUploadTargetFolder(t *testing.T) {
	runTest(t, func(t *testing.T, storer *memory.Storer, uploader *driveup.Uploader, ctx context.Context) {
		source := writeFile(t, "data.bin", "hello, world")
		id, err := uploader.Upload(ctx, driveup.Request{SourcePath: source, TargetPath: "docs/", ParentID: memory.RootID, Checksum: true})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		file := mustGet(t, storer, id)
		if file.Name != "data.bin" {
			t.Errorf("Expected file to be named data.bin, got %q", file.Name)
		}
		docs := mustGet(t, storer, file.ParentID)
		if docs.Name != "docs" || docs.Kind != driveup.KindFolder || docs.ParentID != memory.RootID {
			t.Errorf("Expected data.bin inside a docs folder under root, got %+v", docs)
		}
		sidecars, err := storer.List(ctx, driveup.Query{ParentID: docs.ID, Name: "data.bin.sha256", Kind: driveup.KindFile})
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if len(sidecars) != 1 {
			t.Errorf("Expected one sidecar inside docs, got %d", len(sidecars))
		}
	})
}
