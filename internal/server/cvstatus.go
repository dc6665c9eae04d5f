package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// statusResponse is the polling contract. Unknown sessions get a synthesized
// upload-started answer rather than a 404: a client may poll before the first
// status lands, and an error there would loop forever on its side.
type statusResponse struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Progress  int       `json:"progress"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// CVStatus handles GET /api/v1/cv/status/{session_id}.
func (s *Service) CVStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	update := s.store.CurrentOrDefault(sessionID)

	s.writeJSON(w, http.StatusOK, statusResponse{
		Stage:     string(update.Stage),
		Message:   update.Message,
		Progress:  update.Progress,
		Details:   update.Details,
		Timestamp: update.Timestamp,
	})
}

// ListCVs handles GET /api/v1/cv/list.
func (s *Service) ListCVs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}

// MessagingHealth handles GET /api/v1/messaging/health.
func (s *Service) MessagingHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"connected":             s.health.Healthy(),
		"persistence_available": s.health.PersistenceAvailable(),
	})
}
