package magicnumber

import (
	"bufio"
	"io"

	"github.com/h2non/filetype"
)

// HeaderSize is the number of bytes needed to determine the MIME type.
const HeaderSize = 261

// DefaultMIME is reported when the content doesn't match a known type.
const DefaultMIME = "application/octet-stream"

// Sniffer is an io.Writer that remembers the first HeaderSize bytes
// written to it, so it can sit in an io.MultiWriter or io.TeeReader
// alongside an upload and report the MIME type of what passed through.
// Once it has enough data, further writes are no-ops.
type Sniffer struct {
	buf []byte
}

// Write records the start of the data. It never returns an error.
func (s *Sniffer) Write(b []byte) (int, error) {
	if missing := HeaderSize - len(s.buf); missing > 0 {
		if len(b) < missing {
			missing = len(b)
		}
		s.buf = append(s.buf, b[:missing]...)
	}
	return len(b), nil
}

// MIME returns the detected MIME type of the data written so far, or
// DefaultMIME.
func (s *Sniffer) MIME() string {
	return Detect(s.buf)
}

// Detect returns the MIME type of the content starting with header, or
// DefaultMIME if the header is too short or unknown.
func Detect(header []byte) string {
	t, err := filetype.Match(header)
	if err != nil || t == filetype.Unknown || t.MIME.Value == "" {
		return DefaultMIME
	}
	return t.MIME.Value
}

// Peek detects the MIME type of r without consuming it. The returned
// io.Reader yields the full content of r, including the header.
func Peek(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, HeaderSize)
	header, err := br.Peek(HeaderSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", nil, err
	}
	return Detect(header), br, nil
}
