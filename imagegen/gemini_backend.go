package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"pixelbatch/core"
)

// GeminiConfig configures GeminiBackend.
type GeminiConfig struct {
	// Model is the Imagen model id. Default: imagen-3.0-generate-002.
	Model string

	// BaseURL overrides the Gemini API endpoint. Tests point it at httptest.
	BaseURL string

	// HTTPClient carries timeouts and TLS settings. Nil uses the SDK default.
	HTTPClient *http.Client
}

// GeminiBackend generates images with the Imagen models through the Gemini
// API. It keeps one SDK client per credential.
type GeminiBackend struct {
	cfg GeminiConfig

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiBackend creates a GeminiBackend.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	if cfg.Model == "" {
		cfg.Model = core.DefaultGeminiModel
	}
	return &GeminiBackend{cfg: cfg, clients: make(map[string]*genai.Client)}
}

var _ Backend = (*GeminiBackend)(nil)

func (b *GeminiBackend) Name() string { return core.ProviderGemini }

func (b *GeminiBackend) client(ctx context.Context, credential string) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[credential]; ok {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: b.cfg.HTTPClient,
	}
	if b.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: b.cfg.BaseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	b.clients[credential] = c
	return c, nil
}

// GenerateImages calls models.generateImages and base64-encodes each
// returned JPEG.
func (b *GeminiBackend) GenerateImages(ctx context.Context, credential string, req Request) ([]string, error) {
	c, err := b.client(ctx, credential)
	if err != nil {
		return nil, err
	}

	resp, err := c.Models.GenerateImages(ctx, b.cfg.Model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(req.Count),
		OutputMIMEType: "image/jpeg",
		AspectRatio:    string(req.AspectRatio),
	})
	if err != nil {
		if isRejectedGeminiKey(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return nil, err
	}

	var payloads []string
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		payloads = append(payloads, base64.StdEncoding.EncodeToString(img.Image.ImageBytes))
	}
	return payloads, nil
}

// isRejectedGeminiKey reports whether err is the API's answer to a bad or
// revoked key. The API answers a malformed key with 400 INVALID_ARGUMENT
// and the "API key not valid" text, and a revoked one with 401 or 403.
func isRejectedGeminiKey(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return true
		}
		if strings.Contains(apiErr.Message, invalidKeyMarker) ||
			strings.Contains(apiErr.Status, "UNAUTHENTICATED") ||
			strings.Contains(fmt.Sprint(apiErr.Details), "API_KEY_INVALID") {
			return true
		}
	}
	return mentionsInvalidKey(err)
}
