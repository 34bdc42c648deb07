package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keygenie/bb84sim/bb84"
)

var errTooManySessions = errors.New("too many live sessions")

// CreateRequest is the body of POST /sessions. Levels are percentages in
// [0, 100].
type CreateRequest struct {
	Qubits               int     `json:"qubits"`
	NoisePercent         float64 `json:"noisePercent"`
	EavesdroppingPercent float64 `json:"eavesdroppingPercent"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	noise, err := bb84.FromPercent(req.NoisePercent)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "noisePercent: "+err.Error())
		return
	}
	eve, err := bb84.FromPercent(req.EavesdroppingPercent)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "eavesdroppingPercent: "+err.Error())
		return
	}
	sess, err := s.add(bb84.Opts{Qubits: req.Qubits, Noise: noise, Eavesdropping: eve})
	switch {
	case errors.Is(err, errTooManySessions):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info().
		Str("session_id", sess.ID().String()).
		Int("qubits", req.Qubits).
		Float64("noise", noise).
		Float64("eavesdropping", eve).
		Msg("Session created")
	w.Header().Set("Location", "/sessions/"+sess.ID().String())
	s.writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		s.writeJSON(w, http.StatusOK, sess.Snapshot())
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		s.writeJSON(w, http.StatusOK, sess.Advance())
	})
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		s.writeJSON(w, http.StatusOK, sess.Retreat())
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		s.writeJSON(w, http.StatusOK, sess.Reset())
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		s.writeJSON(w, http.StatusOK, sess.Run())
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *bb84.Session) {
		rep, ok := sess.Report()
		if !ok {
			s.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"ready": false,
				"phase": sess.Phase(),
			})
			return
		}
		s.writeJSON(w, http.StatusOK, rep)
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || !s.remove(id) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession resolves the {id} URL parameter and runs f while holding the
// session's lock.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, f func(*bb84.Session)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	e, ok := s.lookup(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.session)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
