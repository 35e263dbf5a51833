package generation

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pixelbatch/core"
)

func TestDecodeCommand_Single(t *testing.T) {
	input := `
style: stickfigure
aspect_ratio: "9:16"
prompts:
  - text: a red fox
    count: 2
  - id: lh
    text: a lighthouse
  - text: "   "
    count: 0
`
	cmd, err := DecodeCommand(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}

	if cmd.PromptMode != core.PromptModeSingle {
		t.Errorf("mode = %q, want single", cmd.PromptMode)
	}
	if cmd.GenerationMode != core.ModeStickFigure || cmd.AspectRatio != core.AspectTall {
		t.Errorf("style/aspect = %q/%q", cmd.GenerationMode, cmd.AspectRatio)
	}
	want := []core.PromptDescriptor{
		{ID: "1", Text: "a red fox", Count: 2},
		{ID: "lh", Text: "a lighthouse", Count: 1},
		{ID: "3", Text: "   ", Count: 0},
	}
	if !reflect.DeepEqual(cmd.Prompts, want) {
		t.Errorf("prompts = %+v, want %+v", cmd.Prompts, want)
	}
}

func TestDecodeCommand_BulkInferred(t *testing.T) {
	cmd, err := DecodeCommand(strings.NewReader("style: custom\ncustom_style: ink wash\nbulk: |\n  one\n  two\n"))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.PromptMode != core.PromptModeBulk {
		t.Errorf("mode = %q, want bulk", cmd.PromptMode)
	}
	if cmd.CustomStyle != "ink wash" {
		t.Errorf("custom style = %q", cmd.CustomStyle)
	}
	tasks, err := Expand(cmd.PromptMode, cmd.Prompts, cmd.BulkPrompts)
	if err != nil || len(tasks) != 2 {
		t.Errorf("Expand() = %+v, %v", tasks, err)
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "promts:\n  - text: typo\n",
		"unknown mode":  "mode: batch\n",
		"bad yaml":      "prompts: [\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeCommand(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeCommand_RejectsCountBelowOne(t *testing.T) {
	for _, count := range []string{"0", "-4"} {
		t.Run(count, func(t *testing.T) {
			input := "prompts:\n  - text: a fox\n    count: " + count + "\n"
			_, err := DecodeCommand(strings.NewReader(input))
			if !errors.Is(err, ErrInvalidCount) {
				t.Errorf("DecodeCommand() error = %v, want ErrInvalidCount", err)
			}
		})
	}
}

func TestDecodeCommand_Empty(t *testing.T) {
	cmd, err := DecodeCommand(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeCommand(empty) error = %v", err)
	}
	if cmd.PromptMode != core.PromptModeSingle || cmd.GenerationMode != core.ModePixel {
		t.Errorf("defaults = %+v", cmd)
	}
}

func TestLoadCommandFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("mode: bulk\nbulk: a\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cmd, err := LoadCommandFile(path)
	if err != nil {
		t.Fatalf("LoadCommandFile() error = %v", err)
	}
	if cmd.BulkPrompts != "a" {
		t.Errorf("bulk = %q", cmd.BulkPrompts)
	}

	if _, err := LoadCommandFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
