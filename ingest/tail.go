package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileTailer follows a growing log file. When no data is available Next
// suspends on filesystem notifications instead of polling.
//
// Truncation rewinds to the start of the file. Rename or removal (log
// rotation) ends the stream with ErrSourceExhausted so the supervisor can
// reopen the new file.
type FileTailer struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	offset  int64
	partial strings.Builder
	logger  *zap.SugaredLogger

	closeOnce sync.Once
}

// NewFileTailer opens path and positions at its end, or at its start when
// fromStart is set.
func NewFileTailer(path string, fromStart bool, logger *zap.SugaredLogger) (*FileTailer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var offset int64
	if !fromStart {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to seek %s: %w", path, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		file.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	logger.Infow("Tailing event log", "path", path, "from_start", fromStart, "offset", offset)

	return &FileTailer{
		path:    path,
		file:    file,
		reader:  bufio.NewReaderSize(file, 64*1024),
		watcher: watcher,
		offset:  offset,
		logger:  logger,
	}, nil
}

// Next implements Source.
func (t *FileTailer) Next(ctx context.Context) (string, error) {
	for {
		line, ok, err := t.readLine()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSourceExhausted, err)
		}
		if ok {
			return line, nil
		}
		if err := t.wait(ctx); err != nil {
			return "", err
		}
	}
}

// readLine returns the next complete line if one is buffered or on disk.
func (t *FileTailer) readLine() (string, bool, error) {
	chunk, err := t.reader.ReadString('\n')
	t.offset += int64(len(chunk))
	t.partial.WriteString(chunk)

	switch {
	case err == nil:
		line := strings.TrimRightFunc(t.partial.String(), isTrailingSpace)
		t.partial.Reset()
		return line, true, nil
	case errors.Is(err, io.EOF):
		return "", false, nil
	default:
		return "", false, err
	}
}

// wait blocks until the file changes or ctx is done.
func (t *FileTailer) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-t.watcher.Events:
			if !ok {
				return ErrSourceExhausted
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				t.logger.Infow("Event log rotated", "path", t.path, "op", event.Op.String())
				return fmt.Errorf("%w: %s was rotated", ErrSourceExhausted, t.path)
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			if err := t.checkTruncated(); err != nil {
				return fmt.Errorf("%w: %v", ErrSourceExhausted, err)
			}
			return nil

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return ErrSourceExhausted
			}
			t.logger.Warnw("File watcher error", "path", t.path, "error", err)
		}
	}
}

// checkTruncated rewinds when the file shrank below the read offset.
func (t *FileTailer) checkTruncated() error {
	info, err := t.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= t.offset {
		return nil
	}

	t.logger.Infow("Event log truncated, rewinding", "path", t.path, "size", info.Size(), "offset", t.offset)
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	t.reader.Reset(t.file)
	t.partial.Reset()
	t.offset = 0
	return nil
}

// Close implements Source.
func (t *FileTailer) Close() error {
	var err error
	t.closeOnce.Do(func() {
		werr := t.watcher.Close()
		err = t.file.Close()
		if err == nil {
			err = werr
		}
	})
	return err
}
