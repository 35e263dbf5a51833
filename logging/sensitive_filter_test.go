package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		mustHide string
		keep     string
	}{
		{
			name:     "google key",
			input:    "using " + testGoogleKey + " now",
			mustHide: testGoogleKey,
			keep:     "using ",
		},
		{
			name:     "openai key",
			input:    "Incorrect API key provided: sk-proj-abcdefghijklmnopqrstuvwxyz",
			mustHide: "sk-proj-abcdefghijklmnopqrstuvwxyz",
			keep:     "Incorrect API key provided",
		},
		{
			name:     "query parameter keeps name",
			input:    "POST /v1beta/models:predict?key=abc123&alt=json",
			mustHide: "abc123",
			keep:     "?key=",
		},
		{
			name:     "assignment",
			input:    "api_key=hunter22",
			mustHide: "hunter22",
			keep:     "api_key=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.input)
			if strings.Contains(got, tt.mustHide) {
				t.Errorf("RedactSensitiveData() = %q still contains %q", got, tt.mustHide)
			}
			if !strings.Contains(got, tt.keep) {
				t.Errorf("RedactSensitiveData() = %q lost %q", got, tt.keep)
			}
		})
	}
}

func TestRedactSensitiveData_LeavesPlainText(t *testing.T) {
	msg := "API key not valid. Please pass a valid API key."
	if got := RedactSensitiveData(msg); got != msg {
		t.Errorf("RedactSensitiveData() = %q, want unchanged", got)
	}
	if ContainsSensitiveData(msg) {
		t.Error("ContainsSensitiveData() = true for plain text")
	}
}

func TestIsSensitiveField(t *testing.T) {
	tests := map[string]bool{
		"api_key":          true,
		"credential":       true,
		"auth_token":       true,
		"credential_index": false,
		"prompt":           false,
		"key_count":        false,
	}
	for name, want := range tests {
		if got := IsSensitiveField(name); got != want {
			t.Errorf("IsSensitiveField(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, zapcore.InfoLevel); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
