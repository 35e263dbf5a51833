package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces credential material in log output.
const RedactedPlaceholder = "[REDACTED]"

// Credential shapes that may appear inside error messages or request dumps.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),                 // Google API keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),                 // OpenAI keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),      // Authorization headers
	regexp.MustCompile(`(?i)([?&]key=)[^&\s"']+`),               // ?key= query parameters
	regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)[^\s,;"']+`), // api_key=... assignments
}

// Field names whose values are always redacted.
var sensitiveFieldNames = []string{
	"API_KEY",
	"APIKEY",
	"CREDENTIAL",
	"SECRET",
	"TOKEN",
	"PASSWORD",
}

// RedactSensitiveData replaces every credential-shaped substring of value.
//
// Example:
//
//	RedactSensitiveData("GET /v1/models?key=AIzaSy...")
//	// "GET /v1/models?key=[REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, p := range sensitivePatterns {
		if p.NumSubexp() > 0 {
			result = p.ReplaceAllString(result, "${1}"+RedactedPlaceholder)
		} else {
			result = p.ReplaceAllString(result, RedactedPlaceholder)
		}
	}
	return result
}

// ContainsSensitiveData reports whether value matches any credential pattern.
func ContainsSensitiveData(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// IsSensitiveField reports whether a field name implies a secret value.
// Slot numbers such as "credential_index" are not secrets.
func IsSensitiveField(name string) bool {
	upper := strings.ToUpper(name)
	if strings.HasSuffix(upper, "_INDEX") || strings.HasSuffix(upper, "_COUNT") {
		return false
	}
	for _, s := range sensitiveFieldNames {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}
