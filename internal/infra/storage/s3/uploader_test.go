package s3

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/infra/config"
)

func TestHostOf(t *testing.T) {
	assert.Equal(t, "minio:9000", hostOf("http://minio:9000"))
	assert.Equal(t, "minio:9000", hostOf("minio:9000"))
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example/chat-media/messages/a/1.png", objectURL("https://cdn.example/", "chat-media", "/messages/a/1.png"))
}

func TestNewUploaderValidation(t *testing.T) {
	_, err := NewUploader(config.S3Config{Bucket: "b"}, nil)
	assert.Error(t, err)
	_, err = NewUploader(config.S3Config{Endpoint: "http://localhost:9000"}, nil)
	assert.Error(t, err)

	u, err := NewUploader(config.S3Config{Endpoint: "http://localhost:9000", Bucket: "chat-media"}, nil)
	require.NoError(t, err)
	_, err = u.Upload(context.Background(), "  ", strings.NewReader("x"), 1, "image/png")
	assert.Error(t, err)
}
