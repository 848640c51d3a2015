package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Command captures audio from the stdout of an external program, for example
// `ffmpeg -f pulse -i default.monitor -f s16le -ac 2 -ar 48000 pipe:1`.
type Command struct {
	*Reader

	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// StartCommand starts argv and returns a source reading its stdout.
func StartCommand(argv []string, format Format, frameMs int, logger *slog.Logger) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty capture command", ErrNoDevice)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrNoDevice, err)
	}

	reader, err := NewReader(stdout, format, frameMs)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %v", ErrNoDevice, argv[0], err)
	}

	logger.Info("Capture command started",
		slog.String("command", strings.Join(argv, " ")),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("format", format.String()),
		slog.Int("frame_ms", frameMs),
	)

	return &Command{
		Reader: reader,
		cmd:    cmd,
		stdout: stdout,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Close stops the capture program and releases its resources.
func (c *Command) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.stop()
		err := c.cmd.Wait()
		// killed by cancel is the normal way to stop
		if errors.Is(err, context.Canceled) || (c.cmd.ProcessState != nil && !c.cmd.ProcessState.Exited()) {
			err = nil
		}
		c.closeErr = err
		c.logger.Info("Capture command stopped")
	})
	return c.closeErr
}
