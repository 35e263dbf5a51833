// Package generation turns prompt input into generation tasks and runs
// them against the remote client with a pool of credentials.
package generation

import (
	"errors"
	"fmt"
	"strings"

	"pixelbatch/core"
)

// Run-level errors. A run that returns one of these made no remote calls.
var (
	ErrNoCredentials  = errors.New("generation: no credentials configured")
	ErrNoValidPrompts = errors.New("generation: no valid prompts")
	ErrRunInProgress  = errors.New("generation: a run is already in progress")
	ErrInvalidAspect  = errors.New("generation: unsupported aspect ratio")
	ErrInvalidCount   = errors.New("generation: prompt count must be at least 1")
)

// ErrStoreWriteFailed marks a task whose image was generated but could not
// be persisted. It is reported per task, never as a run error.
var ErrStoreWriteFailed = errors.New("generation: store write failed")

// ExpandSingle expands single-mode descriptors. Each descriptor with
// non-blank text takes the next prompt index and yields Count tasks. A
// descriptor with Count < 1 yields nothing but still takes its index.
func ExpandSingle(descriptors []core.PromptDescriptor) []core.GenerationTask {
	var tasks []core.GenerationTask
	index := 0
	for _, d := range descriptors {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		index++
		for i := 0; i < d.Count; i++ {
			tasks = append(tasks, core.GenerationTask{OriginalPrompt: text, PromptIndex: index})
		}
	}
	return tasks
}

// CheckCounts returns ErrInvalidCount for the first descriptor with
// non-blank text and a count below 1. Blank descriptors are ignored by
// expansion, so their count is not checked.
func CheckCounts(descriptors []core.PromptDescriptor) error {
	for i, d := range descriptors {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		if d.Count < 1 {
			return fmt.Errorf("%w: prompt %d has count %d", ErrInvalidCount, i+1, d.Count)
		}
	}
	return nil
}

// ExpandBulk expands bulk text: one task per non-blank line, indexed by
// its rank among non-blank lines.
func ExpandBulk(text string) []core.GenerationTask {
	var tasks []core.GenerationTask
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tasks = append(tasks, core.GenerationTask{OriginalPrompt: line, PromptIndex: len(tasks) + 1})
	}
	return tasks
}

// Expand dispatches on mode and returns ErrNoValidPrompts when nothing is
// left to generate.
func Expand(mode core.PromptMode, descriptors []core.PromptDescriptor, bulk string) ([]core.GenerationTask, error) {
	var tasks []core.GenerationTask
	if mode == core.PromptModeBulk {
		tasks = ExpandBulk(bulk)
	} else {
		tasks = ExpandSingle(descriptors)
	}
	if len(tasks) == 0 {
		return nil, ErrNoValidPrompts
	}
	return tasks, nil
}
