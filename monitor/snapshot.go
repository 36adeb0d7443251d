package monitor

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TaskInfo describes one registered task.
type TaskInfo struct {
	ID      TaskID `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// SocketInfo describes one open socket.
type SocketInfo struct {
	ID          SocketID `json:"id"`
	Owner       TaskID   `json:"owner"`
	Description string   `json:"description"`
}

// Snapshot is a consistent view of the registry.
type Snapshot struct {
	Shutdown bool         `json:"shutdown"`
	Tasks    []TaskInfo   `json:"tasks"`
	Sockets  []SocketInfo `json:"sockets"`
}

// Snapshot copies the registry, ordered by ID. The root task is included.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot{
		Shutdown: m.IsShutdown(),
		Tasks:    make([]TaskInfo, 0, len(m.tasks)),
		Sockets:  make([]SocketInfo, 0, len(m.sockets)),
	}

	taskIDs := maps.Keys(m.tasks)
	slices.Sort(taskIDs)
	for _, id := range taskIDs {
		t := m.tasks[id]
		info := TaskInfo{ID: id, Name: t.name, Running: true}
		select {
		case <-t.done:
			info.Running = false
			if t.err != nil {
				info.Error = t.err.Error()
			}
		default:
		}
		out.Tasks = append(out.Tasks, info)
	}

	socketIDs := maps.Keys(m.sockets)
	slices.Sort(socketIDs)
	for _, id := range socketIDs {
		s := m.sockets[id]
		out.Sockets = append(out.Sockets, SocketInfo{
			ID:          id,
			Owner:       s.owner,
			Description: s.desc,
		})
	}
	return out
}
