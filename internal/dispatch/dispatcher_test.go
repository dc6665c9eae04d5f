package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/constants"
	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/pipeline"
	"github.com/talentpool/cv-pipeline/internal/repository"
	"github.com/talentpool/cv-pipeline/internal/status"
)

type fakeDocs struct {
	created []*repository.Document
	err     error
}

func (f *fakeDocs) Create(_ context.Context, doc *repository.Document) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.New()
	doc.ID = id
	f.created = append(f.created, doc)
	return id, nil
}

type fakeQueue struct {
	jobs []pipeline.Job
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job pipeline.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeUploadEvents struct {
	uploaded []string
}

func (f *fakeUploadEvents) CVUploaded(_ uuid.UUID, _, sessionID string) bool {
	f.uploaded = append(f.uploaded, sessionID)
	return true
}

func pdfUpload() Upload {
	return Upload{
		Filename:    "resume.pdf",
		ContentType: "application/pdf",
		Size:        2 << 20,
		Content:     []byte("%PDF-1.7 ..."),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	store := status.NewStore(nil)
	docs := &fakeDocs{}
	queue := &fakeQueue{}
	events := &fakeUploadEvents{}
	d := NewDispatcher(store, docs, queue, events, 0, nil)

	sessionID, err := d.Submit(context.Background(), pdfUpload())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	// The session must be resolvable before Submit returns.
	current, ok := store.Current(sessionID)
	if !ok {
		t.Fatal("session not resolvable after submit")
	}
	if current.Stage != constants.StageFileValidation {
		t.Fatalf("stage = %s, want file_validation", current.Stage)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("enqueued jobs = %d, want 1", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.SessionID != sessionID || job.Filename != "resume.pdf" {
		t.Fatalf("job = %+v", job)
	}
	if len(events.uploaded) != 1 || events.uploaded[0] != sessionID {
		t.Fatalf("uploaded events = %v", events.uploaded)
	}
}

// TestSubmitRejectsBadType covers the synchronous rejection path: no session,
// no status update, nothing stored.
func TestSubmitRejectsBadType(t *testing.T) {
	store := status.NewStore(nil)
	docs := &fakeDocs{}
	queue := &fakeQueue{}
	d := NewDispatcher(store, docs, queue, &fakeUploadEvents{}, 0, nil)

	upload := pdfUpload()
	upload.Filename = "notes.txt"
	upload.ContentType = "text/plain"

	sessionID, err := d.Submit(context.Background(), upload)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !common.IsAdmission(err) {
		t.Fatalf("error %v should be an admission error", err)
	}
	if sessionID != "" {
		t.Fatal("no session id may be issued for a pure validation failure")
	}
	if len(docs.created) != 0 || len(queue.jobs) != 0 {
		t.Fatal("nothing may be stored or scheduled")
	}
}

func TestSubmitRejectsOversized(t *testing.T) {
	d := NewDispatcher(status.NewStore(nil), &fakeDocs{}, &fakeQueue{}, &fakeUploadEvents{}, 1024, nil)

	upload := pdfUpload()
	upload.Size = 4096

	if _, err := d.Submit(context.Background(), upload); err == nil {
		t.Fatal("expected size rejection")
	}
}

// TestSubmitStorageFailure checks a failure after session creation leaves a
// coherent terminal error status behind.
func TestSubmitStorageFailure(t *testing.T) {
	store := status.NewStore(nil)
	docs := &fakeDocs{err: errors.New("connection refused")}
	d := NewDispatcher(store, docs, &fakeQueue{}, &fakeUploadEvents{}, 0, nil)

	sessionID, err := d.Submit(context.Background(), pdfUpload())
	if err == nil {
		t.Fatal("expected storage error")
	}
	if sessionID == "" {
		t.Fatal("session id should exist for post-admission failures")
	}
	current, ok := store.Current(sessionID)
	if !ok || current.Stage != constants.StageError {
		t.Fatalf("status = %+v, want terminal error", current)
	}
}

func TestSubmitEnqueueFailure(t *testing.T) {
	store := status.NewStore(nil)
	queue := &fakeQueue{err: errors.New("queue closed")}
	d := NewDispatcher(store, &fakeDocs{}, queue, &fakeUploadEvents{}, 0, nil)

	sessionID, err := d.Submit(context.Background(), pdfUpload())
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	current, _ := store.Current(sessionID)
	if current.Stage != constants.StageError {
		t.Fatalf("stage = %s, want error", current.Stage)
	}
}
