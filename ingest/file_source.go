package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// FileSource reads newline-delimited JSON alerts from a file, such as a SIEM
// export spool. Each Fetch continues after the last line it read.
type FileSource struct {
	name   string
	path   string
	logger *zap.SugaredLogger

	mu     sync.Mutex
	offset int64
}

// NewFileSource creates a file source registered under name.
func NewFileSource(name, path string, logger *zap.SugaredLogger) *FileSource {
	return &FileSource{name: name, path: path, logger: logger}
}

func (s *FileSource) Name() string { return s.name }

// Fetch parses up to limit lines. Malformed lines are logged and skipped.
// A file that shrank since the last read is read again from the start. The
// read position only moves when Fetch succeeds.
func (s *FileSource) Fetch(ctx context.Context, limit int) ([]FetchedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := s.offset
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(f)
	out := make([]FetchedEvent, 0, limit)
	lineNo := 0
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] != '\n' && err == io.EOF {
			// partial last line, wait for the writer to finish it
			break
		}
		offset += int64(len(line))
		lineNo++

		if trimmed := trimLine(line); len(trimmed) > 0 {
			fe, perr := ParseJSONEvent(trimmed, s.name)
			if perr != nil {
				s.logger.Warnw("Skipping malformed event line", "source", s.name, "line", lineNo, "error", perr)
			} else {
				out = append(out, *fe)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	s.offset = offset
	return out, nil
}

func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r' || line[len(line)-1] == ' ') {
		line = line[:len(line)-1]
	}
	return line
}

var _ Source = (*FileSource)(nil)
