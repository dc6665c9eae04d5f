package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/talentpool/cv-pipeline/internal/dispatch"
	"github.com/talentpool/cv-pipeline/internal/repository"
	"github.com/talentpool/cv-pipeline/internal/status"
)

// Submitter accepts new CV uploads for processing.
type Submitter interface {
	Submit(ctx context.Context, upload dispatch.Upload) (string, error)
}

// DocumentLister returns the stored document inventory.
type DocumentLister interface {
	List(ctx context.Context) ([]repository.DocumentSummary, error)
}

// HealthProber reports messaging transport health.
type HealthProber interface {
	Healthy() bool
	PersistenceAvailable() bool
}

// Service wires the HTTP surface to the job lifecycle core.
type Service struct {
	dispatcher  Submitter
	store       *status.Store
	docs        DocumentLister
	health      HealthProber
	maxFileSize int64
	logger      *slog.Logger
}

func NewService(
	dispatcher Submitter,
	store *status.Store,
	docs DocumentLister,
	health HealthProber,
	maxFileSize int64,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dispatcher:  dispatcher,
		store:       store,
		docs:        docs,
		health:      health,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Router builds the API routes.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/cv/upload", s.UploadCV).Methods("POST")
	api.HandleFunc("/cv/status/{session_id}", s.CVStatus).Methods("GET")
	api.HandleFunc("/cv/list", s.ListCVs).Methods("GET")
	api.HandleFunc("/messaging/health", s.MessagingHealth).Methods("GET")
	return r
}

func (s *Service) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
