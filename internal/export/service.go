package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/talentpool/cv-pipeline/internal/repository"
)

// lister is the read side of the document repository the export needs.
type lister interface {
	List(ctx context.Context) ([]repository.DocumentSummary, error)
}

// Service is a tiny façade over the document repository that produces XLSX
// bytes for inventory exports.
type Service struct {
	docs   lister
	logger *slog.Logger
}

func NewService(docs lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, logger: logger}
}

// ExportInventoryXLSX returns an XLSX workbook (as bytes) listing every stored
// CV, newest first. If since is non-nil only uploads at or after that instant
// are included.
func (s *Service) ExportInventoryXLSX(ctx context.Context, since *time.Time) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	if since != nil {
		filtered := docs[:0]
		for _, d := range docs {
			if !d.UploadedAt.Before(*since) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}

	f := excelize.NewFile()
	const sheet = "CVs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Uploaded At",
		"Filename",
		"Content Type",
		"Size (bytes)",
		"Processed",
		"CV ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, d := range docs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if !d.UploadedAt.IsZero() {
			write(1, d.UploadedAt.UTC().Format("2006-01-02 15:04:05"))
		} else {
			write(1, "")
		}
		write(2, truncate(d.Filename, 140))
		write(3, d.ContentType)
		write(4, d.FileSize)
		if d.Processed {
			write(5, "yes")
		} else {
			write(5, "no")
		}
		write(6, d.ID.String())

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 40) // filename
	_ = f.SetColWidth(sheet, "C", "C", 30) // content type
	_ = f.SetColWidth(sheet, "D", "D", 14) // size
	_ = f.SetColWidth(sheet, "E", "E", 10) // processed
	_ = f.SetColWidth(sheet, "F", "F", 38) // uuid

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
