package constants

import "strings"

// MaxUploadSize is the upload size ceiling for CV documents.
const MaxUploadSize = 10 * 1024 * 1024 // 10MB

// AllowedContentTypes holds the accepted MIME types for CV uploads.
var AllowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// AllowedExtensions holds the accepted file extensions for CV uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeAllowed reports whether a MIME type is accepted for upload.
func ContentTypeAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	_, ok := AllowedContentTypes[ct]
	return ok
}
