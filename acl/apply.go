package acl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultApplyTimeout bounds one reload of the network configuration
const DefaultApplyTimeout = 30 * time.Second

// maxOutputInError caps how much command output is quoted in an error
const maxOutputInError = 512

// prohibitedShellCommands are interpreters the apply command may not be.
// The command line is split on whitespace and executed directly.
var prohibitedShellCommands = []string{"sh", "bash", "ash", "dash", "zsh", "ksh", "busybox"}

// CommandApplier reloads the access control list by running a command such
// as "/etc/init.d/network restart".
type CommandApplier struct {
	argv    []string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewCommandApplier validates command and returns an applier for it.
func NewCommandApplier(command string, timeout time.Duration, logger *zap.SugaredLogger) (*CommandApplier, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("apply command cannot be empty")
	}
	if err := validateShellProhibited(argv[0]); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	return &CommandApplier{argv: argv, timeout: timeout, logger: logger}, nil
}

// Apply implements Applier.
func (c *CommandApplier) Apply(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	c.logger.Debugw("ACL apply command finished",
		"command", strings.Join(c.argv, " "),
		"duration", time.Since(start),
		"error", err)

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("apply command timed out after %s", c.timeout)
	}
	if err != nil {
		out := strings.TrimSpace(output.String())
		if len(out) > maxOutputInError {
			out = out[:maxOutputInError] + "..."
		}
		if out != "" {
			return fmt.Errorf("apply command failed: %w: %s", err, out)
		}
		return fmt.Errorf("apply command failed: %w", err)
	}
	return nil
}

// validateShellProhibited rejects shell interpreters as the apply command
func validateShellProhibited(command string) error {
	name := command
	if i := strings.LastIndex(command, "/"); i != -1 {
		name = command[i+1:]
	}
	for _, prohibited := range prohibitedShellCommands {
		if strings.EqualFold(name, prohibited) {
			return fmt.Errorf("prohibited shell command: %s", prohibited)
		}
	}
	return nil
}
