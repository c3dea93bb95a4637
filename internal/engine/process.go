package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lk16/kibitz/internal/uci"
)

const (
	linesBufferSize = 256
	maxLineLength   = 1024 * 1024
	quitGracePeriod = 500 * time.Millisecond
)

var (
	// ErrChannelClosed is returned when sending to a closed channel.
	ErrChannelClosed = errors.New("engine channel is closed")

	errOutputClosed = errors.New("engine output closed")
)

// Channel is a line-oriented connection to an engine.
type Channel interface {
	// Send writes one command line.
	Send(command string) error

	// Lines returns engine output lines in arrival order. It is closed when the output ends.
	Lines() <-chan string

	// Err returns why the output ended, after Lines is closed.
	Err() error

	// Close releases the engine.
	Close() error
}

// Opener opens a new Channel.
type Opener func(ctx context.Context) (Channel, error)

// ProcessOpener returns an Opener that starts the engine executable at path.
func ProcessOpener(path string, args ...string) Opener {
	return func(ctx context.Context) (Channel, error) {
		return StartProcess(ctx, path, args...)
	}
}

// Process is a Channel backed by a local engine process.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	lines  chan string

	// err is why the output ended
	err error

	// errMutex protects err
	errMutex sync.Mutex

	// writeMutex serializes writes to stdin
	writeMutex sync.Mutex

	// closed is closed by Close
	closed    chan struct{}
	closeOnce sync.Once

	// exited is closed once the process was reaped
	exited chan struct{}
}

// StartProcess starts the engine executable at path.
func StartProcess(ctx context.Context, path string, args ...string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)

	slog.Debug("Starting engine", "path", path, "cmd.Args", cmd.Args)

	if cmd.Err != nil {
		return nil, fmt.Errorf("failed to resolve engine path: %w", cmd.Err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		lines:  make(chan string, linesBufferSize),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
	}

	go p.readLines()

	slog.Debug("Engine process started", "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) readLines() {
	defer close(p.exited)
	defer close(p.lines)

	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("Engine stdout", "line", line)

		select {
		case p.lines <- line:
		case <-p.closed:
			p.setErr(ErrChannelClosed)
			p.reap()
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = errOutputClosed
	}

	p.setErr(err)
	p.reap()
}

// reap waits for the process after its output was fully read.
func (p *Process) reap() {
	// Unblock the engine in case it is still writing.
	go func() {
		_, _ = io.Copy(io.Discard, p.stdout)
	}()

	if err := p.cmd.Wait(); err != nil {
		slog.Debug("Engine process exited", "error", err)
	}
}

func (p *Process) setErr(err error) {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()

	if p.err == nil {
		p.err = err
	}
}

// Send writes command to the engine's stdin.
func (p *Process) Send(command string) error {
	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()

	select {
	case <-p.closed:
		return ErrChannelClosed
	default:
	}

	slog.Debug("Engine stdin", "command", command)

	if _, err := io.WriteString(p.stdin, command+"\n"); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}

	return nil
}

// Lines returns the engine's output lines.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Err returns why the output ended.
func (p *Process) Err() error {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()

	return p.err
}

// Close asks the engine to quit and kills it if it does not exit in time.
func (p *Process) Close() error {
	var err error

	p.closeOnce.Do(func() {
		_ = p.Send(uci.CmdQuit)

		p.writeMutex.Lock()
		close(p.closed)
		_ = p.stdin.Close()
		p.writeMutex.Unlock()

		select {
		case <-p.exited:
			return
		case <-time.After(quitGracePeriod):
		}

		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("failed to kill engine process: %w", killErr)
			return
		}

		<-p.exited
	})

	return err
}
