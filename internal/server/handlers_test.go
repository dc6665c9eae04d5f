package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/constants"
	"github.com/talentpool/cv-pipeline/internal/agent"
	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/dispatch"
	"github.com/talentpool/cv-pipeline/internal/pipeline"
	"github.com/talentpool/cv-pipeline/internal/repository"
	"github.com/talentpool/cv-pipeline/internal/status"
)

type stubSubmitter struct {
	sessionID string
	err       error
	got       dispatch.Upload
}

func (s *stubSubmitter) Submit(_ context.Context, upload dispatch.Upload) (string, error) {
	s.got = upload
	return s.sessionID, s.err
}

type stubLister struct {
	docs []repository.DocumentSummary
	err  error
}

func (s *stubLister) List(context.Context) ([]repository.DocumentSummary, error) {
	return s.docs, s.err
}

type stubHealth struct {
	connected   bool
	persistence bool
}

func (s *stubHealth) Healthy() bool              { return s.connected }
func (s *stubHealth) PersistenceAvailable() bool { return s.persistence }

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func newTestService(sub Submitter, store *status.Store) *Service {
	if store == nil {
		store = status.NewStore(nil)
	}
	return NewService(sub, store, &stubLister{}, &stubHealth{connected: true}, constants.MaxUploadSize, nil)
}

func TestUploadCV(t *testing.T) {
	sub := &stubSubmitter{sessionID: "cv_123_000001"}
	svc := newTestService(sub, nil)

	body, contentType := multipartBody(t, "resume.pdf", "application/pdf", bytes.Repeat([]byte("a"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cv/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["session_id"] != "cv_123_000001" || resp["status"] != "processing_started" {
		t.Fatalf("response = %v", resp)
	}
	if sub.got.Filename != "resume.pdf" || sub.got.Size != 2<<20 {
		t.Fatalf("submitted upload = %+v", sub.got)
	}
}

func TestUploadCVRejection(t *testing.T) {
	sub := &stubSubmitter{err: common.NewAppError("INVALID_FILE_TYPE",
		"only PDF and Word documents are allowed", common.ErrInvalidInput)}
	svc := newTestService(sub, nil)

	body, contentType := multipartBody(t, "notes.txt", "text/plain", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cv/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadCVMissingFile(t *testing.T) {
	svc := newTestService(&stubSubmitter{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cv/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadCVStorageFailure(t *testing.T) {
	sub := &stubSubmitter{sessionID: "cv_9_000009", err: errors.New("insert document: connection refused")}
	svc := newTestService(sub, nil)

	body, contentType := multipartBody(t, "resume.pdf", "application/pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cv/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["session_id"] != "cv_9_000009" {
		t.Fatalf("response should carry the session id, got %v", resp)
	}
}

// TestCVStatusUnknownSession verifies the synthesized default, not a 404.
func TestCVStatusUnknownSession(t *testing.T) {
	svc := newTestService(&stubSubmitter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cv/status/cv_unknown_000000", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != string(constants.StageUploadStarted) || resp.Progress != 5 {
		t.Fatalf("response = %+v, want synthesized upload_started/5", resp)
	}
}

func TestMessagingHealth(t *testing.T) {
	store := status.NewStore(nil)
	svc := NewService(&stubSubmitter{}, store, &stubLister{},
		&stubHealth{connected: true, persistence: false}, constants.MaxUploadSize, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messaging/health", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp["connected"] || resp["persistence_available"] {
		t.Fatalf("response = %v", resp)
	}
}

// --- end-to-end wiring through the real core ---

type e2eAnalyzer struct{}

func (e2eAnalyzer) Analyze(_ context.Context, req agent.Request) (agent.StageResult, error) {
	if req.Task == "guardrail" {
		return agent.StageResult{Output: `{"is_valid_cv": true, "confidence": 0.9}`}, nil
	}
	return agent.StageResult{Output: req.Task + " ok"}, nil
}

type e2eDocs struct{}

func (e2eDocs) Create(_ context.Context, doc *repository.Document) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (e2eDocs) MarkProcessed(context.Context, uuid.UUID, bool) error { return nil }

type e2eEvents struct{}

func (e2eEvents) CVUploaded(uuid.UUID, string, string) bool        { return true }
func (e2eEvents) ProcessingStarted(uuid.UUID, string) bool         { return true }
func (e2eEvents) ProcessingCompleted(uuid.UUID, string, bool) bool { return true }

// TestUploadToCompletion drives a 2MB PDF through submission, background
// execution, and polling until the terminal state.
func TestUploadToCompletion(t *testing.T) {
	store := status.NewStore(nil)
	docs := e2eDocs{}
	orch := pipeline.NewOrchestrator(store, e2eEvents{}, e2eAnalyzer{}, docs,
		pipeline.DefaultGatePolicy, time.Second, nil)
	queue := dispatch.NewQueue(orch, nil, dispatch.WithWorkers(1))
	dispatcher := dispatch.NewDispatcher(store, docs, queue, e2eEvents{}, 0, nil)
	svc := NewService(dispatcher, store, &stubLister{}, &stubHealth{connected: true}, constants.MaxUploadSize, nil)

	body, contentType := multipartBody(t, "resume.pdf", "application/pdf", bytes.Repeat([]byte("p"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cv/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	sessionID := resp["session_id"]
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	// The session is resolvable immediately, before the pipeline finishes.
	if update := store.CurrentOrDefault(sessionID); update.Progress < 5 {
		t.Fatalf("initial progress = %d", update.Progress)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queue.Shutdown(ctx)

	pollReq := httptest.NewRequest(http.MethodGet, "/api/v1/cv/status/"+sessionID, nil)
	pollRec := httptest.NewRecorder()
	svc.Router().ServeHTTP(pollRec, pollReq)

	var final statusResponse
	if err := json.Unmarshal(pollRec.Body.Bytes(), &final); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if final.Stage != string(constants.StageCompleted) || final.Progress != 100 {
		t.Fatalf("final status = %+v, want completed/100", final)
	}
}
