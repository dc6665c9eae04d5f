package bus

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// eventSender is what the publisher needs from the bus service.
type eventSender interface {
	Publish(subject string, data map[string]any, persistent bool) bool
}

// Publisher emits the well-known application events. Lifecycle events use
// persistent delivery; chatter stays best-effort.
type Publisher struct {
	bus    eventSender
	logger *slog.Logger
}

func NewPublisher(bus eventSender, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{bus: bus, logger: logger}
}

// CVUploaded publishes the document-received event.
func (p *Publisher) CVUploaded(cvID uuid.UUID, filename, sessionID string) bool {
	ok := p.bus.Publish("events.cv.uploaded", map[string]any{
		"cv_id":      cvID.String(),
		"filename":   filename,
		"session_id": sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}, true)
	if !ok {
		p.logger.Warn("failed to publish cv uploaded event", "cv_id", cvID, "session_id", sessionID)
	}
	return ok
}

// ProcessingStarted publishes the pipeline-start event for a session.
func (p *Publisher) ProcessingStarted(cvID uuid.UUID, sessionID string) bool {
	return p.bus.Publish("events.cv.processing.started", map[string]any{
		"cv_id":      cvID.String(),
		"session_id": sessionID,
		"status":     "processing",
	}, true)
}

// ProcessingCompleted publishes the terminal event for a session.
func (p *Publisher) ProcessingCompleted(cvID uuid.UUID, sessionID string, success bool) bool {
	state := "completed"
	if !success {
		state = "failed"
	}
	return p.bus.Publish("events.cv.processing.completed", map[string]any{
		"cv_id":      cvID.String(),
		"session_id": sessionID,
		"status":     state,
		"success":    success,
	}, true)
}

// AgentTaskCompleted publishes a per-agent task completion for multi-agent
// coordination.
func (p *Publisher) AgentTaskCompleted(agentID, taskID string, result map[string]any) bool {
	return p.bus.Publish("agent.task.completed."+agentID, map[string]any{
		"agent_id":     agentID,
		"task_id":      taskID,
		"result":       result,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}, true)
}
