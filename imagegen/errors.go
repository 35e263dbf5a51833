package imagegen

import (
	"errors"
	"strings"
)

// Error kinds returned by Client.Generate. Use errors.Is to test for them.
var (
	// ErrMissingCredential means the call was made without a credential.
	// No network request was attempted.
	ErrMissingCredential = errors.New("imagegen: missing credential")

	// ErrInvalidCredential means the remote rejected the credential as
	// invalid or expired.
	ErrInvalidCredential = errors.New("imagegen: invalid or expired credential")

	// ErrGenerationFailed covers every other failure, including a
	// successful response that carried no images.
	ErrGenerationFailed = errors.New("imagegen: generation failed")
)

// User-facing messages, one per failure shape.
const (
	MessageMissingCredential = "API key is missing."
	MessageInvalidCredential = "Failed to generate image. The provided API key is invalid or has expired."
	MessageGenerationFailed  = "Failed to generate image. Please check your prompt and API key."
	MessageNoImageData       = "No image data returned from API."
)

// GenerationError is the error type returned by Client.Generate.
// Error returns the kind; Message is safe to show to users; Diagnostic
// keeps the underlying cause for logs.
type GenerationError struct {
	Kind    error
	Cause   error
	message string
}

// NewGenerationError builds a classified error. Backends and callers that
// detect a failure outside the remote call use it to keep one error shape.
func NewGenerationError(kind error, message string, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Cause: cause, message: message}
}

func (e *GenerationError) Error() string {
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *GenerationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Message returns the user-facing text for this failure.
func (e *GenerationError) Message() string {
	return e.message
}

// Diagnostic returns the underlying cause text, or "" when there is none.
func (e *GenerationError) Diagnostic() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// UserMessage returns the text to show for err. Generation errors use
// their classified message; anything else falls back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Message()
	}
	return err.Error()
}

// invalidKeyMarker is the text the Gemini API puts in its rejection of a
// bad key.
const invalidKeyMarker = "API key not valid"

func mentionsInvalidKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), invalidKeyMarker)
}
