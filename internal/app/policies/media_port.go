package policies

import (
	"context"
	"io"
)

// ImageUploader stores an image and returns a URL clients can fetch.
type ImageUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}
