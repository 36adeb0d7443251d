package monitor

import (
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// SocketID is assigned from a counter that is never reset. An ID below the
// counter that is missing from the registry belongs to a socket that was
// already closed.
type SocketID uint64

// Closer is anything the monitor can close on behalf of its owner: TCP
// listeners, TCP connections, UDP sockets.
type Closer = io.Closer

type socket struct {
	id     SocketID
	owner  TaskID
	closer Closer
	desc   string
}

func (m *Monitor) registerSocket(owner TaskID, c Closer) SocketID {
	if c == nil {
		panicf("monitor: register of nil socket by task %d", owner)
	}
	desc := describe(c)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[owner]; !ok {
		panicf("monitor: register of socket %q by unknown task %d", desc, owner)
	}
	s := &socket{
		id:     m.nextSocketID,
		owner:  owner,
		closer: c,
		desc:   desc,
	}
	m.nextSocketID++
	m.sockets[s.id] = s
	owned, ok := m.socketsByTask[owner]
	if !ok {
		owned = make(map[SocketID]struct{})
		m.socketsByTask[owner] = owned
	}
	owned[s.id] = struct{}{}
	m.pending.Added = append(m.pending.Added, s.id)
	m.broadcastLocked()
	return s.id
}

// CloseSocket closes the socket registered under id and removes it from the
// registry. Closing an already closed id is a no-op; closing an id that was
// never issued panics.
func (m *Monitor) CloseSocket(id SocketID) error {
	m.mu.Lock()
	s, ok := m.sockets[id]
	if !ok {
		issued := id < m.nextSocketID
		m.mu.Unlock()
		if !issued {
			panicf("monitor: close of unknown socket %d", id)
		}
		return nil
	}
	m.removeSocketLocked(s)
	m.mu.Unlock()

	return s.closer.Close()
}

// CloseAllSockets closes every socket still in the registry and returns how
// many it closed. After a complete drain there should be none, so each one is
// reported as leaked.
func (m *Monitor) CloseAllSockets() int {
	m.mu.Lock()
	leaked := make([]*socket, 0, len(m.sockets))
	for _, s := range m.sockets {
		leaked = append(leaked, s)
	}
	for _, s := range leaked {
		m.removeSocketLocked(s)
	}
	m.mu.Unlock()

	for _, s := range leaked {
		logrus.Warnf("monitor: closing leaked socket %d (%s) owned by task %d", s.id, s.desc, s.owner)
		if err := s.closer.Close(); err != nil {
			logrus.Debugf("monitor: close of socket %d: %v", s.id, err)
		}
	}
	return len(leaked)
}

// +checklocks:m.mu
func (m *Monitor) removeSocketLocked(s *socket) {
	delete(m.sockets, s.id)
	if owned, ok := m.socketsByTask[s.owner]; ok {
		delete(owned, s.id)
		if len(owned) == 0 {
			delete(m.socketsByTask, s.owner)
		}
	}
	m.pending.Closed = append(m.pending.Closed, s.id)
	m.broadcastLocked()
}

// describe renders a socket for logs and snapshots.
func describe(c Closer) string {
	switch s := c.(type) {
	case net.Listener:
		return fmt.Sprintf("%s listen %s", s.Addr().Network(), s.Addr())
	case net.Conn:
		local := s.LocalAddr()
		if remote := s.RemoteAddr(); remote != nil {
			return fmt.Sprintf("%s %s -> %s", local.Network(), local, remote)
		}
		return fmt.Sprintf("%s %s", local.Network(), local)
	default:
		return fmt.Sprintf("%T", c)
	}
}
