// Package apptest provides in-memory stand-ins for the media router and the
// transcoder launcher.
package apptest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/roomcast/internal/app/rebroadcast"
)

// FakeLauncher records launches instead of spawning processes.
type FakeLauncher struct {
	mu         sync.Mutex
	procs      []*FakeProcess
	specs      []rebroadcast.LaunchSpec
	failNext   error
	nextPID    int
	IgnoreTerm bool
}

func NewFakeLauncher() *FakeLauncher { return &FakeLauncher{nextPID: 1000} }

// FailNext makes the next Launch return err.
func (l *FakeLauncher) FailNext(err error) {
	l.mu.Lock()
	l.failNext = err
	l.mu.Unlock()
}

func (l *FakeLauncher) Launch(ctx context.Context, spec rebroadcast.LaunchSpec) (rebroadcast.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failNext; err != nil {
		l.failNext = nil
		return nil, err
	}
	l.nextPID++
	p := &FakeProcess{pid: l.nextPID, done: make(chan struct{}), ignoreTerm: l.IgnoreTerm}
	p.state.Store(int32(rebroadcast.ProcessRunning))
	l.procs = append(l.procs, p)
	l.specs = append(l.specs, spec)
	return p, nil
}

func (l *FakeLauncher) Processes() []*FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeProcess(nil), l.procs...)
}

func (l *FakeLauncher) Specs() []rebroadcast.LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]rebroadcast.LaunchSpec(nil), l.specs...)
}

// Running counts processes that have not exited.
func (l *FakeLauncher) Running() int {
	n := 0
	for _, p := range l.Processes() {
		if p.State() != rebroadcast.ProcessExited {
			n++
		}
	}
	return n
}

// FakeProcess is a process that exits when told to.
type FakeProcess struct {
	pid        int
	state      atomic.Int32
	done       chan struct{}
	once       sync.Once
	ignoreTerm bool

	mu     sync.Mutex
	err    error
	killed bool
}

func (p *FakeProcess) PID() int                        { return p.pid }
func (p *FakeProcess) State() rebroadcast.ProcessState { return rebroadcast.ProcessState(p.state.Load()) }
func (p *FakeProcess) Done() <-chan struct{}           { return p.done }

func (p *FakeProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Killed reports whether Terminate had to escalate.
func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Crash simulates an unexpected exit.
func (p *FakeProcess) Crash() { p.exit(errors.New("exit status 1")) }

func (p *FakeProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.state.Store(int32(rebroadcast.ProcessExited))
		close(p.done)
	})
}

func (p *FakeProcess) Terminate(ctx context.Context, grace time.Duration) error {
	if p.State() == rebroadcast.ProcessExited {
		return nil
	}
	p.state.Store(int32(rebroadcast.ProcessTerminating))
	if !p.ignoreTerm {
		p.exit(nil)
		return nil
	}
	select {
	case <-time.After(grace):
	case <-ctx.Done():
	}
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(errors.New("signal: killed"))
	return nil
}
