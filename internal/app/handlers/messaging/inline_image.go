package messaging

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"chatrelay/internal/domain/messages"
)

const maxInlineImageBytes = 10 << 20

type inlineImage struct {
	contentType string
	data        []byte
}

func (i inlineImage) extension() string {
	exts, err := mime.ExtensionsByType(i.contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// parseDataURL accepts "data:<image type>;base64,<payload>".
func parseDataURL(raw string) (inlineImage, error) {
	raw = strings.TrimSpace(raw)
	header, payload, ok := strings.Cut(raw, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return inlineImage{}, fmt.Errorf("%w: inline image must be a base64 data URL", messages.ErrInvalidPayload)
	}
	contentType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if !strings.HasPrefix(contentType, "image/") {
		return inlineImage{}, fmt.Errorf("%w: unsupported content type %q", messages.ErrInvalidPayload, contentType)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxInlineImageBytes {
		return inlineImage{}, fmt.Errorf("%w: inline image too large", messages.ErrInvalidPayload)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return inlineImage{}, fmt.Errorf("%w: inline image is not valid base64", messages.ErrInvalidPayload)
	}
	return inlineImage{contentType: contentType, data: data}, nil
}
