package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/constants"
	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/pipeline"
	"github.com/talentpool/cv-pipeline/internal/repository"
	"github.com/talentpool/cv-pipeline/internal/status"
)

// Upload is one CV submission as received from the transport layer.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// documentCreator persists the raw upload.
type documentCreator interface {
	Create(ctx context.Context, doc *repository.Document) (uuid.UUID, error)
}

// scheduler hands the job to background execution.
type scheduler interface {
	Enqueue(ctx context.Context, job pipeline.Job) error
}

// uploadEvents announces accepted uploads on the bus.
type uploadEvents interface {
	CVUploaded(cvID uuid.UUID, filename, sessionID string) bool
}

// Dispatcher accepts a new job, synchronously reserves a session and records
// its initial status, then schedules pipeline execution out-of-band. The
// session is always resolvable in the status store before Submit returns, so
// a client polling immediately after submission never sees a gap.
type Dispatcher struct {
	store       *status.Store
	docs        documentCreator
	queue       scheduler
	events      uploadEvents
	maxFileSize int64
	logger      *slog.Logger
}

func NewDispatcher(
	store *status.Store,
	docs documentCreator,
	queue scheduler,
	events uploadEvents,
	maxFileSize int64,
	logger *slog.Logger,
) *Dispatcher {
	if maxFileSize <= 0 {
		maxFileSize = constants.MaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:       store,
		docs:        docs,
		queue:       queue,
		events:      events,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// CheckUpload runs the pure input-validation admission checks. Failures here
// happen before any session or status exists.
func (d *Dispatcher) CheckUpload(upload Upload) error {
	if !constants.ContentTypeAllowed(upload.ContentType) {
		return common.NewAppError("INVALID_FILE_TYPE",
			"only PDF and Word documents are allowed", common.ErrInvalidInput)
	}
	if upload.Size > d.maxFileSize {
		return common.NewAppError("FILE_TOO_LARGE",
			fmt.Sprintf("file size exceeds %d byte limit", d.maxFileSize), common.ErrInvalidInput)
	}
	if upload.Size == 0 || len(upload.Content) == 0 {
		return common.NewAppError("EMPTY_FILE", "uploaded file is empty", common.ErrInvalidInput)
	}
	return nil
}

// Submit validates, stores, and schedules one upload, returning the session
// identifier for polling. Failures after session creation record a terminal
// error status first, so a client holding the session id sees a coherent
// terminal state.
func (d *Dispatcher) Submit(ctx context.Context, upload Upload) (string, error) {
	if err := d.CheckUpload(upload); err != nil {
		d.logger.Warn("upload rejected", "filename", upload.Filename, "content_type", upload.ContentType,
			"size", upload.Size, "error", err)
		return "", err
	}

	sessionID := status.NewSessionID(upload.Filename)
	d.store.Record(sessionID, constants.StageUploadStarted, "")
	d.logger.Info("processing upload", "session_id", sessionID, "filename", upload.Filename, "size", upload.Size)

	docID, err := d.docs.Create(ctx, &repository.Document{
		Filename:         upload.Filename,
		OriginalFilename: upload.Filename,
		FileSize:         upload.Size,
		ContentType:      upload.ContentType,
		FileData:         upload.Content,
	})
	if err != nil {
		d.store.Record(sessionID, constants.StageError, err.Error())
		return sessionID, common.WrapError(err, "store upload")
	}

	d.store.Record(sessionID, constants.StageFileValidation, "")

	job := pipeline.Job{
		DocumentID:  docID,
		SessionID:   sessionID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		Size:        upload.Size,
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.store.Record(sessionID, constants.StageError, err.Error())
		return sessionID, common.WrapError(err, "schedule job")
	}

	d.events.CVUploaded(docID, upload.Filename, sessionID)
	return sessionID, nil
}
