// Package blob defines the binary attachment storage boundary.
package blob

import (
	"context"
	"path"
	"strings"

	"github.com/and161185/student-portal/internal/model"
)

// Store writes blobs and issues public URLs for them.
type Store interface {
	// Upload writes data at key. It fails if key already exists.
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL returns the retrieval URL for key. It does not check existence.
	PublicURL(key string) string
}

// FileName returns name without its directory components. ok is false when
// no file name is left ("", ".", ".." or a bare separator).
func FileName(name string) (base string, ok bool) {
	base = path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case ".", "..", "/":
		return "", false
	}
	return base, true
}

// UploadKey returns the deterministic storage key uploads/<requestId>/<fileType>/<name>,
// with name reduced by FileName.
func UploadKey(requestID model.ID, fileType model.FileType, name string) (key string, ok bool) {
	base, ok := FileName(name)
	if !ok {
		return "", false
	}
	return "uploads/" + requestID.String() + "/" + string(fileType) + "/" + base, true
}
