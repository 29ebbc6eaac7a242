package driveup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"yall.in"
)

// Request describes a single upload.
type Request struct {
	// SourcePath is the local file to upload.
	SourcePath string

	// TargetPath is the slash-separated path of the file relative to
	// ParentID. Missing folders are created. If empty, or if it ends in a
	// slash, the base name of SourcePath is used as the file name.
	TargetPath string

	// ParentID is the ID of the remote folder TargetPath is relative to.
	ParentID string

	// Overwrite allows an existing file at TargetPath to be updated.
	Overwrite bool

	// Checksum uploads a sidecar file containing the digest of
	// SourcePath next to the uploaded file.
	Checksum bool
}

// Uploader uploads files to a Storer.
type Uploader struct {
	Storer Storer

	// Integrity verifies transfers. It must use the Storer's
	// DigestAlgorithm.
	Integrity Hasher

	// Sidecar computes the digest written to checksum sidecar files. Its
	// algorithm name is used as the sidecar's extension.
	Sidecar Hasher
}

// NewUploader returns an Uploader for s that verifies transfers with the
// Storer's digest algorithm and writes sidecar files with
// sidecarAlgorithm.
func NewUploader(s Storer, sidecarAlgorithm string) (*Uploader, error) {
	integrity, err := NewHasher(s.DigestAlgorithm())
	if err != nil {
		return nil, fmt.Errorf("error setting up integrity hasher: %w", err)
	}
	sidecar, err := NewHasher(sidecarAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("error setting up checksum hasher: %w", err)
	}
	return &Uploader{Storer: s, Integrity: integrity, Sidecar: sidecar}, nil
}

// Upload uploads req.SourcePath to req.TargetPath under req.ParentID and
// returns the ID of the uploaded file.
//
// If req.Checksum is set, the digest of req.SourcePath is written next to
// it locally, in a file named after the source with the sidecar
// algorithm as an extension, and that file is uploaded next to the
// target, always overwriting. The sidecar's ID is not returned, but any
// error uploading it is.
func (u *Uploader) Upload(ctx context.Context, req Request) (string, error) {
	if req.SourcePath == "" {
		return "", fmt.Errorf("%w: source file path", ErrMissingInput)
	}
	if req.ParentID == "" {
		return "", fmt.Errorf("%w: parent folder ID", ErrMissingInput)
	}

	target := req.TargetPath
	if target == "" || strings.HasSuffix(target, "/") {
		target = path.Join(target, filepath.Base(req.SourcePath))
	}
	segments := SplitPath(target)
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: target path %q has no file name", ErrMissingInput, req.TargetPath)
	}
	folders, leaf := segments[:len(segments)-1], segments[len(segments)-1]

	log := yall.FromContext(ctx)
	log = log.WithField("driveup.source", req.SourcePath)
	log = log.WithField("driveup.target", path.Join(segments...))
	log = log.WithField("driveup.root_id", req.ParentID)
	ctx = yall.InContext(ctx, log)

	log.Debug("[driveup] resolving folders")
	parentID, err := ResolvePath(ctx, u.Storer, req.ParentID, folders)
	if err != nil {
		return "", err
	}

	upserter := Upserter{Integrity: u.Integrity}
	id, err := upserter.Upsert(ctx, u.Storer, parentID, leaf, req.SourcePath, req.Overwrite)
	if err != nil {
		return "", err
	}
	log = log.WithField("driveup.file_id", id)
	log.Info("[driveup] file uploaded")

	if !req.Checksum {
		return id, nil
	}

	sidecarPath, err := u.writeSidecar(req.SourcePath)
	if err != nil {
		return "", err
	}
	sidecarTarget := path.Join(segments...) + "." + u.Sidecar.Algorithm()
	log.WithField("driveup.sidecar", sidecarPath).Debug("[driveup] uploading checksum sidecar")
	_, err = u.Upload(ctx, Request{
		SourcePath: sidecarPath,
		TargetPath: sidecarTarget,
		ParentID:   req.ParentID,
		Overwrite:  true,
	})
	if err != nil {
		return "", fmt.Errorf("error uploading checksum file %s: %w", sidecarPath, err)
	}
	return id, nil
}

// SidecarPath returns the local path of the checksum file for sourcePath.
func (u *Uploader) SidecarPath(sourcePath string) string {
	return sourcePath + "." + u.Sidecar.Algorithm()
}

func (u *Uploader) writeSidecar(sourcePath string) (string, error) {
	sum, err := u.Sidecar.HashFile(sourcePath)
	if err != nil {
		return "", err
	}
	sidecarPath := u.SidecarPath(sourcePath)
	if err := os.WriteFile(sidecarPath, []byte(sum), 0o644); err != nil {
		return "", fmt.Errorf("error writing checksum file %s: %w", sidecarPath, err)
	}
	return sidecarPath, nil
}
