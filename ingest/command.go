package ingest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CommandSource streams the stdout of a long-running command such as
// "logread -f".
type CommandSource struct {
	*ReaderSource
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	logger    *zap.SugaredLogger
	closeOnce sync.Once
}

// NewCommandSource starts command and returns a Source over its stdout.
// The command line is split on whitespace; no shell is involved.
func NewCommandSource(ctx context.Context, command string, logger *zap.SugaredLogger) (*CommandSource, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty source command")
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout of %q: %w", argv[0], err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %q: %w", argv[0], err)
	}

	logger.Infow("Event source command started", "command", command, "pid", cmd.Process.Pid)

	return &CommandSource{
		ReaderSource: NewReaderSource(stdout, logger),
		cmd:          cmd,
		cancel:       cancel,
		logger:       logger,
	}, nil
}

// Next implements Source. When the command exits the error wraps
// ErrSourceExhausted together with the exit status.
func (c *CommandSource) Next(ctx context.Context) (string, error) {
	line, err := c.ReaderSource.Next(ctx)
	if errors.Is(err, ErrSourceExhausted) {
		if waitErr := c.wait(); waitErr != nil {
			return "", fmt.Errorf("%w: command exited: %v", ErrSourceExhausted, waitErr)
		}
	}
	return line, err
}

// Close stops the command and releases its pipe.
func (c *CommandSource) Close() error {
	c.cancel()
	err := c.ReaderSource.Close()
	_ = c.wait()
	return err
}

// wait reaps the process exactly once
func (c *CommandSource) wait() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.cmd.Wait()
		c.logger.Debugw("Event source command exited", "error", err)
	})
	return err
}
