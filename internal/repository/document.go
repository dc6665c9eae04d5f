package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentpool/cv-pipeline/internal/common"
)

// Document is one stored CV upload, raw bytes included.
type Document struct {
	ID               uuid.UUID
	Filename         string
	OriginalFilename string
	FileSize         int64
	ContentType      string
	FileData         []byte
	Processed        bool
	UploadedAt       time.Time
}

// DocumentSummary is the listing row without the raw bytes.
type DocumentSummary struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	Processed   bool      `json:"processed"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	List(ctx context.Context) ([]DocumentSummary, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processed bool) error
}

type documentRepo struct {
	pool Pool
	log  *slog.Logger
}

func NewDocumentRepository(pool Pool, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{pool: pool, log: log}
}

func (r *documentRepo) Create(ctx context.Context, doc *Document) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cvs (id, filename, original_filename, file_size, content_type, file_data, processed, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, doc.Filename, doc.OriginalFilename, doc.FileSize, doc.ContentType, doc.FileData, false, now,
	)
	if err != nil {
		r.log.Error("document create failed", "filename", doc.Filename, "err", err)
		return uuid.Nil, common.WrapError(err, "insert document")
	}
	doc.ID = id
	doc.UploadedAt = now
	r.log.Info("document stored", "cv_id", id, "filename", doc.Filename, "size", doc.FileSize)
	return id, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, filename, original_filename, file_size, content_type, file_data, processed, uploaded_at
		FROM cvs WHERE id = $1`, id)

	var doc Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FileSize,
		&doc.ContentType, &doc.FileData, &doc.Processed, &doc.UploadedAt)
	if err != nil {
		r.log.Error("document lookup failed", "cv_id", id, "err", err)
		return nil, common.NewAppError("NOT_FOUND", "document not found", common.ErrNotFound)
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, filename, file_size, content_type, processed, uploaded_at
		FROM cvs ORDER BY uploaded_at DESC`)
	if err != nil {
		r.log.Error("document list failed", "err", err)
		return nil, common.WrapError(err, "list documents")
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var s DocumentSummary
		if err := rows.Scan(&s.ID, &s.Filename, &s.FileSize, &s.ContentType, &s.Processed, &s.UploadedAt); err != nil {
			return nil, common.WrapError(err, "scan document row")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *documentRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processed bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE cvs SET processed = $2 WHERE id = $1`, id, processed)
	if err != nil {
		r.log.Error("document mark processed failed", "cv_id", id, "err", err)
		return common.WrapError(err, "mark processed")
	}
	r.log.Debug("document marked processed", "cv_id", id, "processed", processed)
	return nil
}
