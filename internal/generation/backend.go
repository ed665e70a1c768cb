// Package generation implements the text, image and video backends that turn
// a classified prompt into message parts.
//
// Backends never touch conversation state. They return parts or fail with
// an *Error, and report progress through the request's callback.
package generation

import (
	"context"

	"mediachat/pkg/mediatypes"
)

// ProgressFunc receives human-readable status updates. Later calls supersede
// earlier ones.
type ProgressFunc func(status string)

// Request is a single generation request.
type Request struct {
	Prompt string

	// History holds the prior turns of the conversation, oldest first.
	// Backends that do not support multi-turn context ignore it.
	History []mediatypes.Message

	OnProgress ProgressFunc
}

// Progress reports status to the request's callback, if any.
func (r Request) Progress(status string) {
	if r.OnProgress != nil {
		r.OnProgress(status)
	}
}

// Backend produces the parts of one assistant reply.
type Backend interface {
	Generate(ctx context.Context, req Request) ([]mediatypes.MessagePart, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) ([]mediatypes.MessagePart, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, req Request) ([]mediatypes.MessagePart, error) {
	return f(ctx, req)
}

// Turn is one prior exchange passed to a text completer.
type Turn struct {
	Role mediatypes.Role
	Text string
}

// TextCompleter is the remote conversational completion capability.
type TextCompleter interface {
	CompleteText(ctx context.Context, prompt string, systemInstruction string, history []Turn) (string, error)
}

// InlineImage is one binary image payload returned by an image synthesizer.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// ImageSynthesizer is the remote image synthesis capability.
type ImageSynthesizer interface {
	SynthesizeImage(ctx context.Context, prompt string, aspectRatio string) ([]InlineImage, error)
}

// VideoRunner drives one video generation to completion and returns a
// locally addressable handle for the result.
type VideoRunner interface {
	Run(ctx context.Context, prompt string, onProgress ProgressFunc) (string, error)
}
