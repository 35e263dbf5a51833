package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"pixelbatch/core"
)

// OpenAIConfig configures OpenAIBackend.
type OpenAIConfig struct {
	// Model is the image model. Default: dall-e-3.
	Model string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1).
	// Azure OpenAI endpoints are detected and use Azure authentication.
	BaseURL string

	// HTTPClient carries timeouts and TLS settings. Nil uses the library default.
	HTTPClient *http.Client
}

// OpenAIBackend generates images through the OpenAI (or Azure OpenAI)
// images API. PNG results are re-encoded so every payload is a JPEG.
type OpenAIBackend struct {
	cfg OpenAIConfig
}

// NewOpenAIBackend creates an OpenAIBackend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Model == "" {
		cfg.Model = core.DefaultOpenAIModel
	}
	return &OpenAIBackend{cfg: cfg}
}

var _ Backend = (*OpenAIBackend)(nil)

func (b *OpenAIBackend) Name() string { return core.ProviderOpenAI }

func (b *OpenAIBackend) newClient(credential string) *openai.Client {
	var clientConfig openai.ClientConfig
	if IsAzureEndpoint(b.cfg.BaseURL) {
		clientConfig = openai.DefaultAzureConfig(credential, b.cfg.BaseURL)
	} else {
		clientConfig = openai.DefaultConfig(credential)
		if b.cfg.BaseURL != "" {
			clientConfig.BaseURL = b.cfg.BaseURL
		}
	}
	if b.cfg.HTTPClient != nil {
		clientConfig.HTTPClient = b.cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientConfig)
}

// GenerateImages calls the images endpoint with a b64_json response format.
func (b *OpenAIBackend) GenerateImages(ctx context.Context, credential string, req Request) ([]string, error) {
	resp, err := b.newClient(credential).CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          b.cfg.Model,
		N:              req.Count,
		Size:           OpenAISizeFor(req.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		if isRejectedOpenAIKey(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return nil, err
	}

	payloads := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.B64JSON == "" {
			continue
		}
		jpeg, err := EnsureJPEG(d.B64JSON)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, jpeg)
	}
	return payloads, nil
}

func isRejectedOpenAIKey(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.Code == "invalid_api_key"
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized
	}
	return false
}
