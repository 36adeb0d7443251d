// Package status serves a read-only JSON view of a running throttle.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"goji.io"
	"goji.io/pat"

	"hop.computer/throttle/monitor"
)

// Source is what the endpoints report on.
type Source interface {
	Snapshot() monitor.Snapshot
	Sessions() []string
}

// Server is an http.Handler that serves the status endpoints.
type Server struct {
	*goji.Mux
	src Source
}

// New routes the status endpoints for src.
func New(src Source) Server {
	s := Server{
		Mux: goji.NewMux(),
		src: src,
	}
	s.Handle(pat.Get("/status"), http.HandlerFunc(s.summary))
	s.Handle(pat.Get("/tasks"), http.HandlerFunc(s.tasks))
	s.Handle(pat.Get("/sockets"), http.HandlerFunc(s.sockets))
	s.Handle(pat.Get("/sessions"), http.HandlerFunc(s.sessions))
	return s
}

// Summary is the body of GET /status. Tasks does not count the root task,
// matching Monitor.Stats.
type Summary struct {
	Shutdown bool `json:"shutdown"`
	Tasks    int  `json:"tasks"`
	Sockets  int  `json:"sockets"`
	Sessions int  `json:"sessions"`
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Snapshot()
	tasks := 0
	for _, t := range snap.Tasks {
		if t.ID != monitor.RootTaskID {
			tasks++
		}
	}
	writeJSON(w, Summary{
		Shutdown: snap.Shutdown,
		Tasks:    tasks,
		Sockets:  len(snap.Sockets),
		Sessions: len(s.src.Sessions()),
	})
}

func (s *Server) tasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Snapshot().Tasks)
}

func (s *Server) sockets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Snapshot().Sockets)
}

func (s *Server) sessions(w http.ResponseWriter, r *http.Request) {
	out := s.src.Sessions()
	if out == nil {
		out = []string{} // non-null empty list
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("status: encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
