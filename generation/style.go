package generation

import (
	"strings"

	"pixelbatch/core"
)

// StylePrefixes maps each preset to the text prepended to prompts.
// The custom preset has no fixed prefix.
var StylePrefixes = map[core.GenerationMode]string{
	core.ModePixel:       "pixel art style, 8-bit, vibrant colors",
	core.ModeStickFigure: "simple stick figure drawing, black on white background, minimalist",
	core.ModeReal:        "ultra realistic photograph, 8k, sharp focus",
	core.ModeCustom:      "",
}

// StyleConfig is the style selection for a run.
type StyleConfig struct {
	Mode   core.GenerationMode `json:"mode"`
	Custom string              `json:"custom,omitempty"`
}

// Prefix resolves the style prefix. Presets with a non-empty table entry
// win; anything else falls back to the trimmed custom text.
func (s StyleConfig) Prefix() string {
	if p := StylePrefixes[s.Mode]; p != "" {
		return p
	}
	return strings.TrimSpace(s.Custom)
}

// FinalPrompt returns the prompt sent to the remote API.
func (s StyleConfig) FinalPrompt(original string) string {
	if p := s.Prefix(); p != "" {
		return p + ", " + original
	}
	return original
}

// ParseGenerationMode accepts a preset name, defaulting to pixel.
func ParseGenerationMode(s string) core.GenerationMode {
	switch m := core.GenerationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case core.ModePixel, core.ModeStickFigure, core.ModeReal, core.ModeCustom:
		return m
	case "":
		return core.ModePixel
	default:
		return core.ModeCustom
	}
}
