package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Updates lists the registry changes since the last call to Monitor.Updates.
type Updates struct {
	Spawned  []TaskID
	Finished []TaskID
	Added    []SocketID
	Closed   []SocketID
}

// Empty reports whether nothing changed.
func (u *Updates) Empty() bool {
	return len(u.Spawned) == 0 && len(u.Finished) == 0 && len(u.Added) == 0 && len(u.Closed) == 0
}

// WaitForUpdates blocks until a task is spawned or finishes, or a socket is
// added or closed, or timeout elapses. It reports whether there are updates
// to collect with Updates.
func (m *Monitor) WaitForUpdates(timeout time.Duration) bool {
	m.mu.Lock()
	if !m.pending.Empty() {
		m.mu.Unlock()
		return true
	}
	notify := m.notify
	m.mu.Unlock()

	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-notify:
		return true
	case <-timer.C:
		return false
	}
}

// Updates returns and clears the pending registry changes.
func (m *Monitor) Updates() Updates {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.pending
	m.pending = Updates{}
	return u
}

// Watch logs every registry change until stop is closed, reaping finished
// tasks as it observes them. It polls at pollInterval so it never busy-waits.
func (m *Monitor) Watch(pollInterval time.Duration, stop <-chan struct{}) {
	m.logUpdates(true)
	for {
		select {
		case <-stop:
			m.logUpdates(false)
			return
		default:
		}
		if !m.WaitForUpdates(pollInterval) {
			continue
		}
		m.logUpdates(false)
	}
}

func (m *Monitor) logUpdates(first bool) {
	u := m.Updates()
	if u.Empty() && !first {
		return
	}

	m.mu.Lock()
	for _, id := range u.Finished {
		if t, ok := m.tasks[id]; ok {
			m.reapLocked(t)
		}
	}
	tasks, sockets := len(m.tasks)-1, len(m.sockets)
	m.mu.Unlock()

	for _, id := range u.Spawned {
		logrus.Debugf("monitor: spawned task %d", id)
	}
	for _, id := range u.Added {
		logrus.Debugf("monitor: added socket %d", id)
	}
	for _, id := range u.Closed {
		logrus.Debugf("monitor: closed socket %d", id)
	}
	logrus.Debugf("monitor: tasks: %d | sockets: %d", tasks, sockets)
}
