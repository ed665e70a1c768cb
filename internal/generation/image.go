package generation

import (
	"context"
	"encoding/base64"
	"strings"

	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// DefaultImageAspectRatio is the aspect ratio requested when none is configured.
const DefaultImageAspectRatio = "1:1"

// ImageBackend answers a prompt with one image part per synthesized payload.
type ImageBackend struct {
	synthesizer ImageSynthesizer
	aspectRatio string
}

// NewImageBackend creates an image backend over synthesizer.
func NewImageBackend(synthesizer ImageSynthesizer, aspectRatio string) *ImageBackend {
	if aspectRatio == "" {
		aspectRatio = DefaultImageAspectRatio
	}
	return &ImageBackend{synthesizer: synthesizer, aspectRatio: aspectRatio}
}

// Generate performs one synthesis round trip. Zero returned images is not an
// error and yields an empty part list.
func (b *ImageBackend) Generate(ctx context.Context, req Request) ([]mediatypes.MessagePart, error) {
	logger.Debug("Image generation starting", "prompt_length", len(req.Prompt), "aspect_ratio", b.aspectRatio)

	images, err := b.synthesizer.SynthesizeImage(ctx, req.Prompt, b.aspectRatio)
	if err != nil {
		logger.Error("Image generation failed", "error", err)
		return nil, Wrap("image.synthesize", err)
	}

	parts := make([]mediatypes.MessagePart, 0, len(images))
	for i, img := range images {
		if img.MIMEType == "" || len(img.Data) == 0 {
			return nil, NewError(KindMalformed, "image.synthesize", "image payload is missing its data or MIME type", nil)
		}
		logger.Debug("Image payload received", "index", i, "mime_type", img.MIMEType, "bytes", len(img.Data))
		parts = append(parts, mediatypes.ImagePart(DataURI(img.MIMEType, img.Data)))
	}

	if len(parts) == 0 {
		logger.Warn("Image generation returned no images")
	}

	return parts, nil
}

// DataURI embeds data and its MIME type in a self-contained URI.
func DataURI(mimeType string, data []byte) string {
	var sb strings.Builder
	sb.WriteString("data:")
	sb.WriteString(mimeType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}
