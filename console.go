package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"pixelbatch/core"
	"pixelbatch/generation"
)

// Console prints run progress to a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Status prints one status board write. It has the signature of a
// StatusBoard subscriber.
func (c *Console) Status(s generation.Status) {
	var clr *color.Color
	icon := "•"
	switch s.Kind {
	case generation.StatusProgress:
		clr = color.New(color.FgCyan)
		icon = "◌"
	case generation.StatusError:
		clr = color.New(color.FgRed)
		icon = "✗"
	case generation.StatusComplete:
		clr = color.New(color.FgGreen, color.Bold)
		icon = "✓"
	default:
		clr = color.New(color.FgHiBlack)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	clr.Fprintf(c.out, "%s %s\n", icon, s.Message)
}

// ImageSaved prints a stored record.
func (c *Console) ImageSaved(rec core.ImageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := "-"
	if rec.PromptIndex != nil {
		idx = fmt.Sprint(*rec.PromptIndex)
	}
	color.New(color.FgHiBlack).Fprintf(c.out, "    saved image %d (prompt #%s)\n", rec.ID, idx)
}

// Summary prints the outcome of a finished run.
func (c *Console) Summary(result *generation.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	elapsed := result.Finished.Sub(result.Started).Round(time.Millisecond)
	if len(result.Failures) == 0 {
		color.New(color.FgGreen, color.Bold).Fprintf(c.out, "━━━ %d image(s) generated ", len(result.Images))
	} else {
		color.New(color.FgYellow, color.Bold).Fprintf(c.out, "━━━ %d image(s) generated, %d failed ", len(result.Images), len(result.Failures))
	}
	color.New(color.FgHiBlack).Fprintf(c.out, "(%s policy, %v)", result.Policy, elapsed)
	fmt.Fprintln(c.out, " ━━━")

	for _, f := range result.Failures {
		color.New(color.FgRed).Fprintf(c.out, "  ✗ prompt #%d %q: %s\n", f.Task.PromptIndex, f.Task.OriginalPrompt, f.Message())
	}
}
