package attachment

import (
	"context"
	"io"

	"learnhub-backend/internal/domain"
)

// Uploader stores uploaded files and returns the attachment descriptor
// that message payloads embed. The URL it returns is durable; messages
// reference it verbatim.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*domain.Attachment, error)
	Delete(ctx context.Context, objectName string) error
}

// UploadInput carries one file upload
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
	UploaderID  string
}
