package source

import (
	"fmt"
	"io"

	"github.com/nxadm/tail"
	"go.uber.org/zap"
)

// FileSource reads a file once from start to end
type FileSource struct {
	path   string
	tail   *tail.Tail
	logger *zap.Logger
	lines  int64
}

// OpenFile opens path for reading. The file must exist; it is not followed past EOF.
func OpenFile(path string, logger *zap.Logger) (*FileSource, error) {
	config := tail.Config{
		Follow:    false,
		ReOpen:    false,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	}

	t, err := tail.TailFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}

	logger.Info("Reading input file", zap.String("file", path))

	return &FileSource{
		path:   path,
		tail:   t,
		logger: logger,
	}, nil
}

func (f *FileSource) ReadLine() (string, error) {
	line, ok := <-f.tail.Lines
	if !ok {
		// Stop reports the reason the reader ended, nil at a clean EOF
		if err := f.tail.Stop(); err != nil {
			return "", fmt.Errorf("error reading %s: %w", f.path, err)
		}
		f.logger.Debug("Reached end of input file",
			zap.String("file", f.path),
			zap.Int64("lines", f.lines))
		return "", io.EOF
	}

	if line.Err != nil {
		return "", fmt.Errorf("error reading %s: %w", f.path, line.Err)
	}

	f.lines++
	return line.Text, nil
}

// Close signals the reader to stop without waiting for it: after an aborted
// import it may still be blocked handing over a line. Polling registers no inotify watches.
func (f *FileSource) Close() error {
	f.tail.Kill(nil)
	return nil
}
