package agent

import "context"

// Request describes one unit of work handed to the agent-execution system.
type Request struct {
	Task      string   // stage task identifier, e.g. "parsing"
	Input     string   // document description or text under analysis
	SessionID string   // correlates the call with a processing session
	Context   []string // outputs of prior stages, oldest first
}

// StageResult is the normalized shape we want back from the agent.
type StageResult struct {
	Output     string   `json:"output"`
	Confidence float32  `json:"confidence,omitempty"` // optional (0..1)
	Notes      []string `json:"notes,omitempty"`
}

// Analyzer is the narrow interface the pipeline depends on. The real
// implementation is an external capability; tests swap in stubs.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (StageResult, error)
}

// Verdict is the guardrail classifier's output.
type Verdict struct {
	IsValidCV  bool    `json:"is_valid_cv"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
}
