// Package copier runs the data-file copy that happens while the server is
// in backup mode.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"hb-go/internal/config"
	"hb-go/internal/hb"
)

// Environment variables set for the copy command.
const (
	EnvBackupDir      = "HB_BACKUP_DIR"
	EnvStartWALFile   = "HB_START_WAL_FILE"
	EnvStartWALOffset = "HB_START_WAL_OFFSET"
)

const waitDelay = 5 * time.Second

// ExecCopier runs an external command, such as rsync or tar, to copy the
// data directory. The destination and start position are passed in the
// command's environment.
type ExecCopier struct {
	argv    []string
	timeout time.Duration
	logger  hb.Logger

	// Stdout and Stderr receive the command's output. They default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecCopier creates a copier for argv. A zero timeout means the copy is
// bounded only by the caller's context.
func NewExecCopier(argv []string, timeout time.Duration, logger hb.Logger) (*ExecCopier, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("copy command is empty")
	}
	if logger == nil {
		logger = hb.NewNopLogger()
	}
	return &ExecCopier{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}, nil
}

func (c *ExecCopier) Copy(ctx context.Context, req hb.CopyRequest) error {
	if req.Start == nil {
		return fmt.Errorf("copy request has no start position")
	}
	if err := os.MkdirAll(req.Directory, 0700); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Env = append(os.Environ(),
		EnvBackupDir+"="+req.Directory,
		EnvStartWALFile+"="+req.Start.FileName,
		EnvStartWALOffset+"="+req.Start.FileOffset,
	)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	// Children of the command may hold the output pipes open after it is killed.
	cmd.WaitDelay = waitDelay

	c.logger.Info("copying data files", "command", c.argv[0], "directory", req.Directory)
	start := time.Now()

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("copy command %s: %w", c.argv[0], ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("copy command %s exited with status %d", c.argv[0], exitErr.ExitCode())
		}
		return fmt.Errorf("running copy command %s: %w", c.argv[0], err)
	}

	c.logger.Info("data files copied", "directory", req.Directory, "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// NopCopier copies nothing. It is used when no copy command is configured,
// leaving the data copy to whoever drives hb.
type NopCopier struct{}

func (NopCopier) Copy(context.Context, hb.CopyRequest) error { return nil }

// NewCopierFromConfig returns an ExecCopier for the configured command, or a
// NopCopier when there is none.
func NewCopierFromConfig(cfg config.CopyConfig, logger hb.Logger) (hb.Copier, error) {
	if len(cfg.Command) == 0 {
		return NopCopier{}, nil
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return NewExecCopier(cfg.Command, timeout, logger)
}

var (
	_ hb.Copier = (*ExecCopier)(nil)
	_ hb.Copier = NopCopier{}
)
