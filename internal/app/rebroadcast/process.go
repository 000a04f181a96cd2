package rebroadcast

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ProcessState int32

const (
	ProcessSpawning ProcessState = iota
	ProcessRunning
	ProcessTerminating
	ProcessExited
)

func (s ProcessState) String() string {
	switch s {
	case ProcessSpawning:
		return "spawning"
	case ProcessRunning:
		return "running"
	case ProcessTerminating:
		return "terminating"
	case ProcessExited:
		return "exited"
	}
	return "unknown"
}

// LaunchSpec describes one subprocess invocation.
type LaunchSpec struct {
	Path string
	Args []string
	Dir  string
	// Name tags log lines of the subprocess.
	Name string
}

// Launcher starts supervised subprocesses.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a running subprocess.
type Process interface {
	PID() int
	State() ProcessState
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit error; valid after Done is closed.
	Err() error
	// Terminate asks the process to exit, escalates to a forced kill after
	// grace and blocks until it has exited or ctx ends.
	Terminate(ctx context.Context, grace time.Duration) error
}

// ExecLauncher runs subprocesses in their own process group so that
// termination reaches every child.
type ExecLauncher struct{}

func (ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := log.With().Str("module", "rebroadcast.process").Str("proc", spec.Name).Logger()

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = logger.With().Str("stream", "stdout").Logger()
	cmd.Stderr = logger.With().Str("stream", "stderr").Logger()

	p := &execProcess{cmd: cmd, done: make(chan struct{}), logger: logger}
	p.state.Store(int32(ProcessSpawning))
	if err := cmd.Start(); err != nil {
		p.state.Store(int32(ProcessExited))
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSubprocessSpawn, spec.Path, err)
	}
	p.state.Store(int32(ProcessRunning))
	logger.Info().Int("pid", cmd.Process.Pid).Msg("process started")

	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	state  atomic.Int32
	done   chan struct{}
	logger zerolog.Logger

	mu  sync.Mutex
	err error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.state.Store(int32(ProcessExited))
	close(p.done)
	p.logger.Info().Err(err).Int("pid", p.PID()).Msg("process exited")
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) State() ProcessState   { return ProcessState(p.state.Load()) }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *execProcess) Terminate(ctx context.Context, grace time.Duration) error {
	if !p.state.CompareAndSwap(int32(ProcessRunning), int32(ProcessTerminating)) {
		if p.State() == ProcessExited {
			return nil
		}
	}
	if err := p.signal(syscall.SIGTERM); err != nil {
		p.logger.Warn().Err(err).Msg("sigterm failed")
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.logger.Warn().Int("pid", p.PID()).Dur("grace", grace).Msg("process ignored sigterm, killing")
	if err := p.signal(syscall.SIGKILL); err != nil {
		p.logger.Error().Err(err).Msg("sigkill failed")
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *execProcess) signal(sig syscall.Signal) error {
	err := syscall.Kill(-p.PID(), sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
