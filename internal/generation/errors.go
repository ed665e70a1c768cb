package generation

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies generation failures.
type ErrorKind string

// Error kinds surfaced by backends and the video poller.
const (
	KindTransport   ErrorKind = "transport"
	KindRemote      ErrorKind = "remote"
	KindMalformed   ErrorKind = "malformed"
	KindCredential  ErrorKind = "credential"
	KindNoResult    ErrorKind = "no_result"
	KindCancelled   ErrorKind = "cancelled"
	KindEmptyPrompt ErrorKind = "empty_prompt"
)

var (
	// ErrNoResult is returned when a finished operation produced no asset.
	ErrNoResult = errors.New("video generation failed to return a URI")

	// ErrOperationNotFound marks a poll failure caused by an expired
	// credential session. It is recoverable by re-authorizing.
	ErrOperationNotFound = errors.New("requested entity was not found")

	// ErrCredentialDeclined is returned when the credential flow ends
	// without supplying a credential.
	ErrCredentialDeclined = errors.New("no API key was selected")

	// ErrReauthExhausted is returned when a video request expired more
	// often than the re-authorization policy allows.
	ErrReauthExhausted = errors.New("API key session expired too many times")

	// ErrEmptyPrompt is returned for a media command without a description.
	ErrEmptyPrompt = errors.New("please describe what you want to generate")
)

// Error is a generation failure carrying a human-readable message.
type Error struct {
	Kind    ErrorKind
	Op      string // backend or step that failed, e.g. "image.synthesize"
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind) + " error"
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a generation error of the given kind.
func NewError(kind ErrorKind, op string, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Wrap converts an arbitrary failure of op into a generation error. Errors
// that already carry a kind are returned unchanged; context errors become
// cancellations and everything else is treated as a transport failure.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindCancelled, op, "generation cancelled", err)
	}

	return NewError(KindTransport, op, "", err)
}

// KindOf reports the kind of err, or "" when err is not a generation error.
func KindOf(err error) ErrorKind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}

// UserMessage renders err as the assistant reply shown in the conversation.
func UserMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Error: Failed to process request."
	}
	return "Error: " + err.Error()
}
