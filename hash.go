package driveup

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	sha256 "github.com/minio/sha256-simd"
)

// ErrUnsupportedAlgorithm is returned when a Hasher is requested for an
// algorithm we don't know about.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Algorithms returns the names of the supported digest algorithms.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hasher computes digests of local files with a single algorithm.
type Hasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// NewHasher returns a Hasher for the named algorithm. Names are matched
// case-insensitively, and a "-" is ignored, so "SHA-256" and "sha256" are
// equivalent.
func NewHasher(algorithm string) (Hasher, error) {
	name := strings.ReplaceAll(strings.ToLower(algorithm), "-", "")
	fn, ok := algorithms[name]
	if !ok {
		return Hasher{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return Hasher{algorithm: name, newHash: fn}, nil
}

// Algorithm returns the normalised name of the algorithm, which doubles
// as the extension used for checksum sidecar files.
func (h Hasher) Algorithm() string {
	return h.algorithm
}

// Hash returns the hex-encoded digest of everything read from r.
func (h Hasher) Hash(r io.Reader) (string, error) {
	if h.newHash == nil {
		return "", fmt.Errorf("%w: hasher not initialised", ErrUnsupportedAlgorithm)
	}
	d := h.newHash()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// HashFile streams the file at path through the Hasher's algorithm and
// returns the hex-encoded digest.
func (h Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening %s to hash: %w", path, err)
	}
	defer f.Close()

	sum, err := h.Hash(f)
	if err != nil {
		return "", fmt.Errorf("error hashing %s with %s: %w", path, h.algorithm, err)
	}
	return sum, nil
}
