// Package ghaction reports the result of an upload the way GitHub Actions
// expects: outputs in the file named by GITHUB_OUTPUT, and failures as
// ::error:: workflow commands.
package ghaction

import (
	"fmt"
	"io"
	"os"

	"github.com/sethvargo/go-githubactions"
)

// OutputFileID is the name of the output holding the uploaded file's ID.
const OutputFileID = "file_id"

// Sink receives the single result of a run.
type Sink struct {
	action *githubactions.Action
}

// New returns a Sink writing workflow commands to w and reading the
// GITHUB_OUTPUT location with getenv. When GITHUB_OUTPUT isn't set,
// outputs are written to w as workflow commands instead.
func New(w io.Writer, getenv func(string) string) *Sink {
	return &Sink{
		action: githubactions.New(
			githubactions.WithWriter(w),
			githubactions.WithGetenv(getenv),
		),
	}
}

// FromEnvironment returns a Sink writing workflow commands to w and
// outputs to the file named by GITHUB_OUTPUT in the process environment.
//
// The returned Sink is always usable. An error means GITHUB_OUTPUT names a
// file that can't be appended to; failures can still be reported on w.
func FromEnvironment(w io.Writer) (*Sink, error) {
	sink := New(w, os.Getenv)
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return sink, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return sink, fmt.Errorf("error opening GITHUB_OUTPUT file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return sink, fmt.Errorf("error closing GITHUB_OUTPUT file %s: %w", path, err)
	}
	return sink, nil
}

// Success records the ID of the uploaded file.
func (s *Sink) Success(fileID string) {
	s.action.SetOutput(OutputFileID, fileID)
}

// Failure reports err as a single workflow error annotation.
func (s *Sink) Failure(err error) {
	s.action.Errorf("%s", err)
}
