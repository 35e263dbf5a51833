package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// Image provider identifiers accepted by IMAGE_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Defaults shared by the config loader and tests.
const (
	DefaultGeminiModel       = "imagen-3.0-generate-002"
	DefaultOpenAIModel       = "dall-e-3"
	DefaultGenerationDelayMs = 3000
	DefaultPort              = 3000
)

// Config holds all configuration values
type Config struct {
	// Storage
	DataDir string
	DBPath  string

	// Remote generation
	ImageProvider        string
	ImageModel           string
	OpenAIBaseURL        string
	AITimeout            time.Duration
	GenerationDelay      time.Duration
	AllowSelfSignedCerts bool

	// HTTP server
	Host string
	Port int

	// Logging
	DevMode  bool
	LogFile  string
	LogLevel string
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from the environment. Callers load the
// .env file beforehand.
func LoadConfig() (*Config, error) {
	dataDir := GetEnvOrDefault("DATA_DIR", "./data")
	provider := strings.ToLower(GetEnvOrDefault("IMAGE_PROVIDER", ProviderGemini))

	var defaultModel string
	switch provider {
	case ProviderGemini:
		defaultModel = DefaultGeminiModel
	case ProviderOpenAI:
		defaultModel = DefaultOpenAIModel
	default:
		return nil, ErrUnknownProvider(provider)
	}

	delay := ParseMillisEnv("GENERATION_DELAY_MS", DefaultGenerationDelayMs)
	if delay < 0 {
		return nil, ErrInvalidValue("GENERATION_DELAY_MS", delay, "must not be negative")
	}

	timeoutSec := ParseIntEnv("AI_TIMEOUT", 60)
	if timeoutSec <= 0 {
		return nil, ErrInvalidValue("AI_TIMEOUT", timeoutSec, "must be positive")
	}

	port := ParseIntEnv("PORT", DefaultPort)
	if port < 1 || port > 65535 {
		return nil, ErrInvalidValue("PORT", port, "must be between 1 and 65535")
	}

	return &Config{
		DataDir: dataDir,
		DBPath:  GetEnvOrDefault("DB_PATH", filepath.Join(dataDir, "pixelbatch.db")),

		ImageProvider:        provider,
		ImageModel:           GetEnvOrDefault("IMAGE_MODEL", defaultModel),
		OpenAIBaseURL:        GetEnvOrDefault("OPENAI_BASE_URL", ""),
		AITimeout:            time.Duration(timeoutSec) * time.Second,
		GenerationDelay:      delay,
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),

		Host: GetEnvOrDefault("HOST", "localhost"),
		Port: port,

		DevMode:  ParseBoolEnv("DEV_MODE", false),
		LogFile:  GetEnvOrDefault("LOG_FILE", "app.log"),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", ""),
	}, nil
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts.
// Used for every outbound request to the image API.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
