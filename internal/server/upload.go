package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/dispatch"
)

// UploadCV handles POST /api/v1/cv/upload: multipart form with a "file" part.
// Success means the job was accepted and scheduled; analysis progress is
// reported through the status endpoint.
func (s *Service) UploadCV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+1024)
	if err := r.ParseMultipartForm(s.maxFileSize); err != nil {
		s.logger.Warn("multipart parse failed", "error", err)
		s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Warn("upload file close error", "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("upload read failed", "filename", header.Filename, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	sessionID, err := s.dispatcher.Submit(r.Context(), dispatch.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Content:     content,
	})
	if err != nil {
		var appErr *common.AppError
		if common.IsAdmission(err) {
			msg := err.Error()
			if errors.As(err, &appErr) {
				msg = appErr.Message
			}
			s.writeError(w, http.StatusBadRequest, msg)
			return
		}
		s.logger.Error("upload failed", "filename", header.Filename, "session_id", sessionID, "error", err)
		// The session, when present, already carries a terminal error status.
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":      "upload failed",
			"session_id": sessionID,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"message":    "CV uploaded successfully! Our AI will analyze it and provide feedback soon.",
		"status":     "processing_started",
	})
}
