package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"apguard/util/goroutine"

	"go.uber.org/zap"
)

// ErrSourceExhausted is returned by Source.Next when the stream has ended or
// become unreadable. The supervisor decides between reconnect and shutdown.
var ErrSourceExhausted = errors.New("event source exhausted")

// maxLineSize caps a single log line
const maxLineSize = 1 << 20

// Source is a line-oriented, append-only event stream.
type Source interface {
	// Next blocks until a line is available, ctx is done, or the stream ends.
	// Returned lines have trailing whitespace stripped.
	Next(ctx context.Context) (string, error)
	// Close releases the underlying handle. Safe to call more than once.
	Close() error
}

// ReaderSource adapts an io.Reader into a Source. A background goroutine does
// the blocking reads so Next can honor context cancellation.
type ReaderSource struct {
	lines  chan string
	done   chan struct{}
	closer io.Closer
	logger *zap.SugaredLogger

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewReaderSource starts reading r line by line. If r is an io.Closer it is
// closed by Close, which then waits for the reading goroutine to exit.
func NewReaderSource(r io.Reader, logger *zap.SugaredLogger) *ReaderSource {
	s := &ReaderSource{
		lines:  make(chan string),
		done:   make(chan struct{}),
		logger: logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	s.wg.Add(1)
	go s.read(r)
	return s
}

func (s *ReaderSource) read(r io.Reader) {
	defer s.wg.Done()
	defer goroutine.Recover("reader-source", s.logger)
	defer close(s.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRightFunc(scanner.Text(), isTrailingSpace)
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
	}
}

// Next implements Source.
func (s *ReaderSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			s.errMu.Lock()
			err := s.err
			s.errMu.Unlock()
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrSourceExhausted, err)
			}
			return "", ErrSourceExhausted
		}
		return line, nil
	}
}

// Close implements Source.
func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
			// closing the reader unblocks a pending Read
			s.wg.Wait()
		}
	})
	return err
}
