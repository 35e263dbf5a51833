package generation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pixelbatch/core"
)

// promptFile is the YAML layout accepted by LoadCommandFile:
//
//	mode: single          # or bulk
//	style: pixel          # pixel | stickfigure | real | custom
//	custom_style: ""
//	aspect_ratio: "16:9"
//	prompts:
//	  - text: a red fox in the snow
//	    count: 2
//	  - text: a lighthouse at dusk
//	bulk: |
//	  one prompt per line
type promptFile struct {
	Mode        string        `yaml:"mode"`
	Style       string        `yaml:"style"`
	CustomStyle string        `yaml:"custom_style"`
	AspectRatio string        `yaml:"aspect_ratio"`
	Prompts     []promptEntry `yaml:"prompts"`
	Bulk        string        `yaml:"bulk"`
}

type promptEntry struct {
	ID    string `yaml:"id"`
	Text  string `yaml:"text"`
	Count *int   `yaml:"count"`
}

// DecodeCommand reads a YAML prompt file. Entries without a count
// generate one image; a count below 1 is rejected. The mode defaults to bulk when only bulk text is
// given.
func DecodeCommand(r io.Reader) (GenerateCommand, error) {
	var f promptFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return GenerateCommand{}, fmt.Errorf("generation: decode prompt file: %w", err)
	}

	cmd := GenerateCommand{
		GenerationMode: ParseGenerationMode(f.Style),
		CustomStyle:    f.CustomStyle,
		AspectRatio:    core.AspectRatio(strings.TrimSpace(f.AspectRatio)),
		BulkPrompts:    f.Bulk,
	}

	switch strings.ToLower(strings.TrimSpace(f.Mode)) {
	case string(core.PromptModeBulk):
		cmd.PromptMode = core.PromptModeBulk
	case string(core.PromptModeSingle):
		cmd.PromptMode = core.PromptModeSingle
	case "":
		cmd.PromptMode = core.PromptModeSingle
		if len(f.Prompts) == 0 && f.Bulk != "" {
			cmd.PromptMode = core.PromptModeBulk
		}
	default:
		return GenerateCommand{}, fmt.Errorf("generation: unknown prompt mode %q", f.Mode)
	}

	for i, p := range f.Prompts {
		count := 1
		if p.Count != nil {
			count = *p.Count
		}
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		cmd.Prompts = append(cmd.Prompts, core.PromptDescriptor{ID: id, Text: p.Text, Count: count})
	}
	if err := CheckCounts(cmd.Prompts); err != nil {
		return GenerateCommand{}, err
	}
	return cmd, nil
}

// LoadCommandFile reads a YAML prompt file from disk.
func LoadCommandFile(path string) (GenerateCommand, error) {
	f, err := os.Open(path)
	if err != nil {
		return GenerateCommand{}, fmt.Errorf("generation: open prompt file: %w", err)
	}
	defer f.Close()
	return DecodeCommand(f)
}
