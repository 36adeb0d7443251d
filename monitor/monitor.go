// Package monitor keeps the registry of every worker goroutine and every
// socket the relay owns, and owns the process-wide shutdown signal.
//
// All registry mutations happen under a single mutex. Waiters are woken by
// closing a notification channel that is replaced after every mutation, which
// gives the condition-variable behavior of sync.Cond with a timeout.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hop.computer/throttle/common"
)

// RootTaskID identifies the goroutine that created the Monitor.
const RootTaskID TaskID = 0

// Monitor is the single source of truth for what work the process is doing.
// The zero value is not usable; call New.
type Monitor struct {
	mu sync.Mutex

	// +checklocks:mu
	tasks map[TaskID]*Task

	// +checklocks:mu
	sockets map[SocketID]*socket

	// +checklocks:mu
	socketsByTask map[TaskID]map[SocketID]struct{}

	// +checklocks:mu
	nextTaskID TaskID

	// +checklocks:mu
	nextSocketID SocketID

	// +checklocks:mu
	pending Updates

	// +checklocks:mu
	notify chan struct{}

	root *Task

	shutdown common.AtomicBool
	ctx      context.Context
	cancel   context.CancelFunc
}

// New returns a Monitor whose root task stands for the calling goroutine.
func New() *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		tasks:         make(map[TaskID]*Task),
		sockets:       make(map[SocketID]*socket),
		socketsByTask: make(map[TaskID]map[SocketID]struct{}),
		notify:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	m.root = &Task{
		id:   RootTaskID,
		name: "root",
		m:    m,
		done: make(chan struct{}),
	}
	m.tasks[RootTaskID] = m.root
	m.nextTaskID = RootTaskID + 1
	return m
}

// Root returns the task representing the goroutine that created the monitor.
// It never finishes and is never drained.
func (m *Monitor) Root() *Task {
	return m.root
}

// Spawn starts work in a new goroutine owned by the root task.
func (m *Monitor) Spawn(name string, work Work) *Task {
	return m.spawn(RootTaskID, name, work)
}

// RegisterSocket records c as owned by the root task.
func (m *Monitor) RegisterSocket(c Closer) SocketID {
	return m.registerSocket(RootTaskID, c)
}

// SignalShutdown sets the shutdown signal. Calling it again has no effect.
func (m *Monitor) SignalShutdown() {
	if m.shutdown.TrySet() {
		logrus.Info("monitor: shutdown signalled")
		m.cancel()
	}
}

// IsShutdown reports whether shutdown has been signalled. It never blocks.
func (m *Monitor) IsShutdown() bool {
	return m.shutdown.IsSet()
}

// Context is cancelled when shutdown is signalled.
func (m *Monitor) Context() context.Context {
	return m.ctx
}

// Drain waits up to timeout for every task other than the root to finish,
// removing each finished task from the registry. It reports whether the
// registry held no running tasks at the deadline. Drain never cancels
// anything; workers stop by observing the shutdown signal.
func (m *Monitor) Drain(timeout time.Duration) bool {
	return m.drain(RootTaskID, timeout)
}

func (m *Monitor) drain(caller TaskID, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		waiting := make([]*Task, 0, len(m.tasks))
		for id, t := range m.tasks {
			if id == RootTaskID || id == caller {
				continue
			}
			waiting = append(waiting, t)
		}
		m.mu.Unlock()

		if len(waiting) == 0 {
			return true
		}
		for _, t := range waiting {
			if !t.Wait(time.Until(deadline)) {
				logrus.Warnf("monitor: task %d (%s) still running at drain deadline", t.id, t.name)
				return false
			}
			m.reap(t)
		}
	}
}

func (m *Monitor) reap(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(t)
}

// reapLocked removes a finished task from the registry and reports its
// result.
//
// +checklocks:m.mu
func (m *Monitor) reapLocked(t *Task) {
	if _, ok := m.tasks[t.id]; !ok {
		return
	}
	delete(m.tasks, t.id)
	if t.err != nil {
		logrus.Infof("monitor: finished task %d (%s) -> %v", t.id, t.name, t.err)
	} else {
		logrus.Debugf("monitor: finished task %d (%s) -> ok", t.id, t.name)
	}
}

// Stats returns the number of registered tasks, not counting the root, and
// the number of open sockets.
func (m *Monitor) Stats() (tasks int, sockets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks) - 1, len(m.sockets)
}

// broadcastLocked wakes everything blocked in WaitForUpdates.
//
// +checklocks:m.mu
func (m *Monitor) broadcastLocked() {
	close(m.notify)
	m.notify = make(chan struct{})
}
