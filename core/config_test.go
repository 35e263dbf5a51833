package core

import (
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATA_DIR", "DB_PATH", "IMAGE_PROVIDER", "IMAGE_MODEL", "OPENAI_BASE_URL",
		"AI_TIMEOUT", "GENERATION_DELAY_MS", "ALLOW_SELF_SIGNED_CERTS",
		"HOST", "PORT", "DEV_MODE", "LOG_FILE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ImageProvider != ProviderGemini {
		t.Errorf("ImageProvider = %q, want %q", cfg.ImageProvider, ProviderGemini)
	}
	if cfg.ImageModel != DefaultGeminiModel {
		t.Errorf("ImageModel = %q, want %q", cfg.ImageModel, DefaultGeminiModel)
	}
	if cfg.GenerationDelay != 3*time.Second {
		t.Errorf("GenerationDelay = %v, want 3s", cfg.GenerationDelay)
	}
	if cfg.DBPath != filepath.Join("./data", "pixelbatch.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Addr() != "localhost:3000" {
		t.Errorf("Addr() = %q, want localhost:3000", cfg.Addr())
	}
}

func TestLoadConfig_OpenAIDefaultsModel(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("IMAGE_PROVIDER", "OpenAI")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ImageProvider != ProviderOpenAI || cfg.ImageModel != DefaultOpenAIModel {
		t.Errorf("got provider %q model %q", cfg.ImageProvider, cfg.ImageModel)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantCode string
	}{
		{name: "unknown provider", key: "IMAGE_PROVIDER", value: "midjourney", wantCode: ErrCodeUnknownProvider},
		{name: "negative delay", key: "GENERATION_DELAY_MS", value: "-1", wantCode: ErrCodeInvalidValue},
		{name: "zero timeout", key: "AI_TIMEOUT", value: "0", wantCode: ErrCodeInvalidValue},
		{name: "port out of range", key: "PORT", value: "70000", wantCode: ErrCodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			if !IsConfigError(err) {
				t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
			}
			if ce := err.(*ConfigError); ce.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", ce.Code, tt.wantCode)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	const key = "PIXELBATCH_TEST_BOOL"
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Setenv(key, tt.value)
		if got := ParseBoolEnv(key, tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseMillisEnv(t *testing.T) {
	const key = "PIXELBATCH_TEST_MILLIS"
	t.Setenv(key, "250")
	if got := ParseMillisEnv(key, 10); got != 250*time.Millisecond {
		t.Errorf("ParseMillisEnv() = %v, want 250ms", got)
	}
	t.Setenv(key, "abc")
	if got := ParseMillisEnv(key, 10); got != 10*time.Millisecond {
		t.Errorf("ParseMillisEnv() fallback = %v, want 10ms", got)
	}
}
