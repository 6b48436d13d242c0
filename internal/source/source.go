package source

import (
	"bufio"
	"io"
	"strings"
)

// LineSource yields input lines one at a time, without the trailing newline.
// ReadLine returns io.EOF once the input is exhausted.
type LineSource interface {
	ReadLine() (string, error)
	Close() error
}

// ReaderSource reads lines from an io.Reader such as standard input
type ReaderSource struct {
	r *bufio.Reader
}

// NewReaderSource creates a line source over r. Lines have no length limit.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: bufio.NewReaderSize(r, 64*1024)}
}

func (s *ReaderSource) ReadLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err == io.EOF && line != "" {
		// last line without a newline
		return line, nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func (s *ReaderSource) Close() error {
	return nil
}
