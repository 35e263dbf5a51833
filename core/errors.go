package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidValue    = "INVALID_VALUE"
	ErrCodeUnknownProvider = "UNKNOWN_PROVIDER"
	ErrCodeDataDir         = "DATA_DIR_UNAVAILABLE"
)

// ErrInvalidValue returns an error for an environment value outside its allowed range.
func ErrInvalidValue(key string, value any, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%v': %s", key, value, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or environment", key),
	}
}

// ErrUnknownProvider returns an error for an unsupported IMAGE_PROVIDER value.
func ErrUnknownProvider(name string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnknownProvider,
		Message: fmt.Sprintf("Unknown image provider '%s'", name),
		Action:  "Set IMAGE_PROVIDER to 'gemini' or 'openai'",
	}
}

// ErrDataDir returns an error when the data directory cannot be used.
func ErrDataDir(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDataDir,
		Message: fmt.Sprintf("Cannot use data directory %s: %s", path, reason),
		Action:  "Set DATA_DIR to a writable directory",
	}
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
