package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/internal/agent"
)

// taskInstructions carries the specialist instructions per pipeline task,
// mirroring the agent definitions the processing workflow coordinates.
var taskInstructions = map[string]string{
	"guardrail": "Check if the uploaded content appears to be a valid CV/resume with professional information. " +
		"Return ONLY JSON matching the provided schema.",
	"file_preparation": "Summarize the document metadata and prepare a concise processing brief for downstream analysis.",
	"remote_upload":    "Confirm the document reference and describe what was staged for analysis.",
	"parsing": "You extract structured information from CVs including work experience, education, skills, and " +
		"contact information. Parse the document systematically and organize the data clearly.",
	"enrichment": "You enhance basic CV data with professional summaries and achievement highlights. Create " +
		"compelling professional narratives that showcase the candidate's strengths and experience effectively.",
	"skills_extraction": "You identify technical skills, tools, programming languages, and proficiency levels " +
		"from CVs. Categorize skills by type and assess proficiency levels where possible.",
	"gap_analysis": "You identify missing information crucial for project matching. Analyze the profile for gaps " +
		"in skills, experience details, or other important information.",
	"finalizing": "Assemble the prior analysis into a final profile summary with actionable feedback.",
}

// Analyze implements agent.Analyzer over the chat/completions endpoint.
func (c *Client) Analyze(ctx context.Context, req agent.Request) (agent.StageResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("agent.analyze.start",
		"req_id", rid,
		"task", req.Task,
		"session_id", req.SessionID,
		"model", c.cfg.Model,
		"input_len", len(req.Input),
		"context_items", len(req.Context),
	)

	sys, ok := taskInstructions[req.Task]
	if !ok {
		sys = "You are a document analysis specialist. Respond concisely."
	}

	messages := []map[string]any{
		{"role": "system", "content": sys},
	}
	if req.Task == "guardrail" {
		messages = append(messages, map[string]any{
			"role":    "system",
			"content": "JSON Schema:\n" + mustJSON(agent.BuildVerdictSchema()),
		})
	}
	messages = append(messages, map[string]any{
		"role":    "user",
		"content": buildUserPrompt(req),
	})

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if req.Task == "guardrail" {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.logger.Error("agent.analyze.http_error",
			"req_id", rid, "task", req.Task, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return agent.StageResult{}, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("agent.analyze.decode_error",
			"req_id", rid, "task", req.Task, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return agent.StageResult{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("agent.analyze.no_choices",
			"req_id", rid, "task", req.Task,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return agent.StageResult{}, fmt.Errorf("no choices in openai response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("agent.analyze.ok",
		"req_id", rid, "task", req.Task,
		"output_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return agent.StageResult{Output: content}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func buildUserPrompt(req agent.Request) string {
	var sb strings.Builder
	sb.WriteString(req.Input)
	if len(req.Context) > 0 {
		sb.WriteString("\n\nPrior analysis:\n")
		for _, item := range req.Context {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
