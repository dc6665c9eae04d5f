package status

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/talentpool/cv-pipeline/constants"
)

// Update is one immutable status record for a session.
type Update struct {
	Stage     constants.Stage `json:"stage"`
	Message   string          `json:"message"`
	Progress  int             `json:"progress"`
	Details   string          `json:"details"`
	Timestamp time.Time       `json:"timestamp"`
}

// maxHistory caps the retained updates per session; only the most recent
// entry is authoritative for current-status reads.
const maxHistory = 20

// Store is a process-wide, concurrency-safe registry of session status
// histories. Status is ephemeral: a restart loses everything, which is
// accepted because the store only backs client polling.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]Update
	logger   *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string][]Update),
		logger:   logger,
	}
}

// Record appends a status update for the session, creating the history if
// absent and trimming it to the most recent entries. It never fails.
func (s *Store) Record(sessionID string, stage constants.Stage, details string) Update {
	info := constants.Info(stage)
	update := Update{
		Stage:     stage,
		Message:   info.Message,
		Progress:  info.Progress,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	history, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Debug("created session history", "session_id", sessionID)
	}
	history = append(history, update)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	s.sessions[sessionID] = history
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("status updated",
		"session_id", sessionID,
		"stage", stage,
		"progress", update.Progress,
		"sessions", total,
	)
	if details != "" {
		s.logger.Debug("status details", "session_id", sessionID, "details", details)
	}
	return update
}

// Current returns the most recent update for a session.
func (s *Store) Current(sessionID string) (Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sessions[sessionID]
	if len(history) == 0 {
		return Update{}, false
	}
	return history[len(history)-1], true
}

// CurrentOrDefault returns the most recent update, or a synthesized
// upload-started default for unknown sessions. Polling can begin before the
// first Record lands; answering with a default instead of a not-found keeps
// clients from spinning on errors.
func (s *Store) CurrentOrDefault(sessionID string) Update {
	if update, ok := s.Current(sessionID); ok {
		return update
	}
	s.logger.Warn("session not found, returning default status", "session_id", sessionID)
	info := constants.Info(constants.StageUploadStarted)
	return Update{
		Stage:     constants.StageUploadStarted,
		Message:   info.Message,
		Progress:  info.Progress,
		Details:   "Processing is starting, please wait...",
		Timestamp: time.Now().UTC(),
	}
}

// History returns a copy of the full retained history for a session.
func (s *Store) History(sessionID string) []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sessions[sessionID]
	out := make([]Update, len(history))
	copy(out, history)
	return out
}

// Clear removes all status data for a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sweep deletes sessions whose most recent update is older than maxAge.
// It returns the number of sessions removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sessionID, history := range s.sessions {
		if len(history) == 0 || history[len(history)-1].Timestamp.Before(cutoff) {
			delete(s.sessions, sessionID)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept old sessions", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// NewSessionID mints a unique session identifier from the current time and a
// short hash of the uploaded file name.
func NewSessionID(fileName string) string {
	suffix := "000000"
	if fileName != "" {
		h := fnv.New32a()
		h.Write([]byte(fileName))
		suffix = fmt.Sprintf("%06d", h.Sum32()%1000000)
	}
	return fmt.Sprintf("cv_%d_%s", time.Now().UnixMilli(), suffix)
}
