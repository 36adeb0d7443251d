package monitor

import (
	"time"
)

// TaskID is assigned from a counter that is never reset, so an ID is never
// reused within the lifetime of a Monitor.
type TaskID uint64

// Work is the body of a monitored task. The returned error is the task's
// result and is reported when the task is reaped.
type Work func(t *Task) error

// Task is the handle of a goroutine started by a Monitor. Sockets registered
// through a Task are owned by it.
type Task struct {
	id   TaskID
	name string
	m    *Monitor
	done chan struct{}

	// written once, before done is closed
	err error
}

func (t *Task) ID() TaskID            { return t.id }
func (t *Task) Name() string          { return t.name }
func (t *Task) Monitor() *Monitor     { return t.m }
func (t *Task) IsShutdown() bool      { return t.m.IsShutdown() }
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error the task finished with. It is nil while the task is
// still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or timeout elapses, and reports whether
// the task finished.
func (t *Task) Wait(timeout time.Duration) bool {
	select {
	case <-t.done:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Spawn starts a child task.
func (t *Task) Spawn(name string, work Work) *Task {
	return t.m.spawn(t.id, name, work)
}

// RegisterSocket records c as owned by t. It must be called right after the
// socket is created and before it is used.
func (t *Task) RegisterSocket(c Closer) SocketID {
	return t.m.registerSocket(t.id, c)
}

// CloseSocket closes a socket registered with t's monitor.
func (t *Task) CloseSocket(id SocketID) error {
	return t.m.CloseSocket(id)
}

// Drain is Monitor.Drain excluding t itself.
func (t *Task) Drain(timeout time.Duration) bool {
	return t.m.drain(t.id, timeout)
}

func (m *Monitor) spawn(parent TaskID, name string, work Work) *Task {
	if work == nil {
		panicf("monitor: spawn of %q with nil work", name)
	}

	m.mu.Lock()
	if _, ok := m.tasks[parent]; !ok {
		m.mu.Unlock()
		panicf("monitor: spawn of %q from unknown task %d", name, parent)
	}
	t := &Task{
		id:   m.nextTaskID,
		name: name,
		m:    m,
		done: make(chan struct{}),
	}
	m.nextTaskID++
	m.tasks[t.id] = t
	m.pending.Spawned = append(m.pending.Spawned, t.id)
	m.broadcastLocked()
	m.mu.Unlock()

	go m.run(t, work)
	return t
}

// run executes work and publishes its completion. A panic in work is not
// recovered: it is a bug and takes the process down.
func (m *Monitor) run(t *Task, work Work) {
	err := work(t)

	t.err = err
	close(t.done)

	m.mu.Lock()
	m.pending.Finished = append(m.pending.Finished, t.id)
	m.broadcastLocked()
	m.mu.Unlock()
}
