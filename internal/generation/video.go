package generation

import (
	"context"

	"mediachat/pkg/mediatypes"
)

// VideoBackend answers a prompt with a single video part produced by a
// long-running operation.
type VideoBackend struct {
	runner VideoRunner
}

// NewVideoBackend creates a video backend over runner.
func NewVideoBackend(runner VideoRunner) *VideoBackend {
	return &VideoBackend{runner: runner}
}

// Generate runs the video operation and wraps its handle in a part.
func (b *VideoBackend) Generate(ctx context.Context, req Request) ([]mediatypes.MessagePart, error) {
	handle, err := b.runner.Run(ctx, req.Prompt, req.OnProgress)
	if err != nil {
		return nil, Wrap("video.run", err)
	}
	if handle == "" {
		return nil, NewError(KindNoResult, "video.run", "", ErrNoResult)
	}
	return []mediatypes.MessagePart{mediatypes.VideoPart(handle)}, nil
}
