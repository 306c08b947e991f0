package engine

import (
	"context"
	"strings"

	"github.com/roach88/archetype/internal/ir"
)

// Uploads keeps the metadata registry UPLOADS fields are checked against.
// File bytes are stored elsewhere.
type Uploads struct {
	e *Engine
}

// Register records an upload's mime type and size.
func (s *Uploads) Register(ctx context.Context, mime string, size int64) (ir.UploadInfo, error) {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return ir.UploadInfo{}, NewValidationError("mime", "mime type is required")
	}
	if size < 0 {
		return ir.UploadInfo{}, NewValidationError("size", "size must not be negative")
	}

	info := ir.UploadInfo{Mime: mime, Size: size, CreatedAt: s.e.clock.Now()}
	id, err := s.e.repo.RegisterUpload(ctx, info)
	if err != nil {
		return ir.UploadInfo{}, s.e.internal("register upload", err)
	}
	info.ID = id

	s.e.logger.Info("upload registered", "upload_id", id, "mime", mime, "size", size)
	return info, nil
}

// Get returns the metadata of an upload.
func (s *Uploads) Get(ctx context.Context, id int64) (ir.UploadInfo, error) {
	info, err := s.e.repo.GetUpload(ctx, id)
	if err != nil {
		return ir.UploadInfo{}, s.e.storeError("get upload", err, "upload", id)
	}
	return info, nil
}
