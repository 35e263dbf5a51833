// Package imagegen is the remote image generation client. It turns one
// prompt into base64 JPEG payloads using a single credential and classifies
// every failure into missing, invalid or generic.
//
// client.go holds the Client organism, which composes:
//   - Backend: GeminiBackend (google.golang.org/genai) or OpenAIBackend (go-openai)
//   - errors.go: the failure taxonomy and user-facing messages
//   - logging.Logger: diagnostics for every failed call
package imagegen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/logging"
)

// Request is one generation call as seen by a Backend.
type Request struct {
	Prompt      string
	AspectRatio core.AspectRatio
	Count       int
}

// Backend performs the remote call for one provider. Implementations wrap
// ErrInvalidCredential around errors the provider reports for a rejected
// key and return raw base64 payloads on success.
type Backend interface {
	Name() string
	GenerateImages(ctx context.Context, credential string, req Request) ([]string, error)
}

// Client validates inputs, calls the Backend and classifies failures.
// It performs no retries. Client is safe for concurrent use.
//
// Example:
//
//	backend, _ := imagegen.NewBackend(cfg)
//	client, _ := imagegen.NewClient(backend, logger)
//	payloads, err := client.Generate(ctx, "a red fox", core.AspectSquare, 1, key)
//	if errors.Is(err, imagegen.ErrInvalidCredential) {
//	    // ask the user to fix the key
//	}
type Client struct {
	backend Backend
	log     *logging.Logger
}

// NewClient creates a Client around backend.
func NewClient(backend Backend, log *logging.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("imagegen: backend cannot be nil")
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{backend: backend, log: log.Named("imagegen").With(zap.String("backend", backend.Name()))}, nil
}

// Generate requests count images for prompt and returns their base64
// payloads. Errors are always *GenerationError.
func (c *Client) Generate(ctx context.Context, prompt string, aspect core.AspectRatio, count int, credential string) ([]string, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, NewGenerationError(ErrMissingCredential, MessageMissingCredential, nil)
	}
	if !aspect.Valid() {
		return nil, NewGenerationError(ErrGenerationFailed, MessageGenerationFailed,
			fmt.Errorf("unsupported aspect ratio %q", aspect))
	}
	if count < 1 {
		return nil, NewGenerationError(ErrGenerationFailed, MessageGenerationFailed,
			fmt.Errorf("image count must be at least 1, got %d", count))
	}

	payloads, err := c.backend.GenerateImages(ctx, credential, Request{
		Prompt:      prompt,
		AspectRatio: aspect,
		Count:       count,
	})
	if err != nil {
		gerr := classify(err)
		c.log.Error("image generation failed",
			zap.String("prompt", prompt),
			zap.String("kind", gerr.Kind.Error()),
			zap.String("diagnostic", gerr.Diagnostic()))
		return nil, gerr
	}

	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		c.log.Warn("image generation returned no payloads", zap.String("prompt", prompt))
		return nil, NewGenerationError(ErrGenerationFailed, MessageNoImageData, nil)
	}
	return out, nil
}

func classify(err error) *GenerationError {
	if isInvalidCredential(err) {
		return NewGenerationError(ErrInvalidCredential, MessageInvalidCredential, err)
	}
	return NewGenerationError(ErrGenerationFailed, MessageGenerationFailed, err)
}

// NewBackend builds the Backend selected by cfg.ImageProvider.
func NewBackend(cfg *core.Config) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	httpClient := core.GetHTTPClient(cfg, cfg.AITimeout)

	switch cfg.ImageProvider {
	case core.ProviderGemini:
		return NewGeminiBackend(GeminiConfig{Model: cfg.ImageModel, HTTPClient: httpClient}), nil
	case core.ProviderOpenAI:
		return NewOpenAIBackend(OpenAIConfig{
			Model:      cfg.ImageModel,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
		}), nil
	default:
		return nil, core.ErrUnknownProvider(cfg.ImageProvider)
	}
}
