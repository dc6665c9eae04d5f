package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/constants"
	"github.com/talentpool/cv-pipeline/internal/agent"
	"github.com/talentpool/cv-pipeline/internal/status"
)

// Job is the unit of work: a stored document reference plus the session
// identifier clients poll with. It has no persisted representation beyond the
// status updates it produces.
type Job struct {
	DocumentID  uuid.UUID
	SessionID   string
	Filename    string
	ContentType string
	Size        int64
}

// Events is the subset of the event publisher the orchestrator emits through.
type Events interface {
	ProcessingStarted(cvID uuid.UUID, sessionID string) bool
	ProcessingCompleted(cvID uuid.UUID, sessionID string, success bool) bool
}

// documentMarker flags stored documents as processed.
type documentMarker interface {
	MarkProcessed(ctx context.Context, id uuid.UUID, processed bool) error
}

// GatePolicy makes the admission-gate trade-off explicit: blocking a
// legitimate job is worse than letting a borderline one through, so both the
// error and the rejection paths default to admitting.
type GatePolicy struct {
	AdmitOnError  bool
	AdmitOnReject bool
}

// DefaultGatePolicy is the permissive policy the processing workflow runs with.
var DefaultGatePolicy = GatePolicy{AdmitOnError: true, AdmitOnReject: true}

type stageDef struct {
	stage constants.Stage
	task  string
}

// specialistStages is the ordered sequence after admission. Each stage's
// output becomes context for the next; there is no parallel fan-out.
var specialistStages = []stageDef{
	{constants.StageFilePreparation, "file_preparation"},
	{constants.StageRemoteUpload, "remote_upload"},
	{constants.StageParsing, "parsing"},
	{constants.StageEnrichment, "enrichment"},
	{constants.StageSkillsExtraction, "skills_extraction"},
	{constants.StageGapAnalysis, "gap_analysis"},
	{constants.StageFinalizing, "finalizing"},
}

// Orchestrator runs a job through the staged analysis sequence. Its whole job
// is sequencing, status reporting, and error containment; the content work is
// delegated to the injected analyzer.
type Orchestrator struct {
	store        *status.Store
	events       Events
	analyzer     agent.Analyzer
	docs         documentMarker
	gate         GatePolicy
	stageTimeout time.Duration
	logger       *slog.Logger
}

func NewOrchestrator(
	store *status.Store,
	events Events,
	analyzer agent.Analyzer,
	docs documentMarker,
	gate GatePolicy,
	stageTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:        store,
		events:       events,
		analyzer:     analyzer,
		docs:         docs,
		gate:         gate,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Run executes one job to a terminal state. A stage failure halts this job
// only: the error status and failure event are recorded, and the returned
// error is informational for the worker log.
func (o *Orchestrator) Run(ctx context.Context, job Job) error {
	o.logger.Info("pipeline started", "session_id", job.SessionID, "cv_id", job.DocumentID, "filename", job.Filename)
	o.events.ProcessingStarted(job.DocumentID, job.SessionID)

	input := fmt.Sprintf(
		"CV file uploaded: %s (%s, %d bytes). Analyze this CV upload and coordinate the profile creation workflow.",
		job.Filename, job.ContentType, job.Size,
	)

	o.store.Record(job.SessionID, constants.StageGuardrailValidation, "")
	if admitted, reason := o.runGuardrail(ctx, job, input); !admitted {
		return o.fail(job, constants.StageGuardrailValidation, fmt.Errorf("guardrail rejected: %s", reason))
	}

	history := make([]string, 0, len(specialistStages))
	for _, def := range specialistStages {
		o.store.Record(job.SessionID, def.stage, "")

		result, err := o.runStage(ctx, job, def, input, history)
		if err != nil {
			return o.fail(job, def.stage, err)
		}
		if result.Output != "" {
			history = append(history, result.Output)
		}
	}

	if err := o.docs.MarkProcessed(ctx, job.DocumentID, true); err != nil {
		// Status, not storage, is the contract with the client; keep going.
		o.logger.Warn("failed to mark document processed", "cv_id", job.DocumentID, "error", err)
	}

	o.store.Record(job.SessionID, constants.StageCompleted, "")
	o.events.ProcessingCompleted(job.DocumentID, job.SessionID, true)
	o.logger.Info("pipeline completed", "session_id", job.SessionID, "cv_id", job.DocumentID)
	return nil
}

// runGuardrail evaluates the admission gate and applies the gate policy to
// the outcome. With the default permissive policy every path admits: a gate
// that cannot confidently classify the input must not block a legitimate job.
func (o *Orchestrator) runGuardrail(ctx context.Context, job Job, input string) (bool, string) {
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	result, err := o.analyzer.Analyze(stageCtx, agent.Request{
		Task:      "guardrail",
		Input:     input,
		SessionID: job.SessionID,
	})
	if err != nil {
		o.logger.Warn("guardrail evaluation failed",
			"session_id", job.SessionID, "admit_on_error", o.gate.AdmitOnError, "error", err)
		return o.gate.AdmitOnError, err.Error()
	}

	verdict, err := agent.ParseVerdict([]byte(result.Output))
	if err != nil {
		o.logger.Warn("guardrail verdict unreadable",
			"session_id", job.SessionID, "admit_on_error", o.gate.AdmitOnError, "error", err)
		return o.gate.AdmitOnError, err.Error()
	}
	if !verdict.IsValidCV {
		// Tripwire observed. The default policy only warns; later stages do
		// the expensive judgment.
		o.logger.Warn("guardrail flagged content as non-CV",
			"session_id", job.SessionID,
			"admit_on_reject", o.gate.AdmitOnReject,
			"reasoning", verdict.Reasoning,
			"confidence", verdict.Confidence,
		)
		return o.gate.AdmitOnReject, verdict.Reasoning
	}
	o.logger.Debug("guardrail admitted job",
		"session_id", job.SessionID, "confidence", verdict.Confidence)
	return true, ""
}

func (o *Orchestrator) runStage(ctx context.Context, job Job, def stageDef, input string, history []string) (agent.StageResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	start := time.Now()
	result, err := o.analyzer.Analyze(stageCtx, agent.Request{
		Task:      def.task,
		Input:     input,
		SessionID: job.SessionID,
		Context:   history,
	})
	if err != nil {
		o.logger.Error("pipeline.stage.failed",
			"session_id", job.SessionID,
			"stage", def.stage,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return agent.StageResult{}, err
	}
	o.logger.Debug("stage completed",
		"session_id", job.SessionID,
		"stage", def.stage,
		"output_len", len(result.Output),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (o *Orchestrator) fail(job Job, stage constants.Stage, cause error) error {
	o.store.Record(job.SessionID, constants.StageError, cause.Error())
	o.events.ProcessingCompleted(job.DocumentID, job.SessionID, false)
	return fmt.Errorf("stage %s: %w", stage, cause)
}
