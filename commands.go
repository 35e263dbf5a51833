package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pixelbatch/archive"
	"pixelbatch/core"
	"pixelbatch/db"
	"pixelbatch/generation"
	"pixelbatch/shutdown"
	"pixelbatch/webui"
)

// usageError marks errors that exit with ExitCodeUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// serveShutdownTimeout bounds the whole shutdown sequence, including the
// wait for an active run.
const serveShutdownTimeout = 60 * time.Second

type rootOptions struct {
	envFile string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func (o *rootOptions) app(logLevel string, onImage func(core.ImageRecord)) (*App, error) {
	return openApp(appOptions{envFile: o.envFile, logLevel: logLevel, onImage: onImage}, o.stderr)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "pixelbatch",
		Short:         "Generate images from prompts with a pool of API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.stdin)
	root.SetOut(opts.stdout)
	root.SetErr(opts.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path of the .env file to load")

	root.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newImagesCmd(opts),
		newKeysCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket status stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// The hub needs the app logger; no run can store an image
			// before the server is up.
			var hub *webui.Broadcaster
			app, err := opts.app("", func(rec core.ImageRecord) { hub.BroadcastImage(rec) })
			if err != nil {
				return err
			}
			hub = webui.NewBroadcaster(webui.DefaultBroadcasterConfig(), app.Log)

			config := webui.DefaultServerConfig()
			config.Host = app.Config.Host
			config.Port = app.Config.Port
			server, err := webui.NewServer(config, webui.Dependencies{
				Runs:   app.Service,
				Status: app.Status,
				Images: app.Images,
				Keys:   app.Keys,
				Hub:    hub,
				Health: app.DB,
			}, app.Log)
			if err != nil {
				app.Close()
				return err
			}

			registry := shutdown.NewRegistry(app.Log)
			registry.Register("http server", shutdown.PriorityListener, server.Shutdown)
			registry.Register("generation runs", shutdown.PriorityRuns, shutdown.WaitFunc(app.Service.Wait))
			registry.Register("websocket hub", shutdown.PriorityHub, func(context.Context) error {
				hub.Close()
				return nil
			})
			registry.Register("database", shutdown.PriorityStorage, func(context.Context) error {
				err := app.DB.Close()
				_ = app.Log.Sync()
				return err
			})

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start(ctx) }()

			var serveErr error
			select {
			case serveErr = <-errCh:
			case <-ctx.Done():
				app.Log.Info("shutting down", zap.Bool("run_active", app.Service.Running()))
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serveShutdownTimeout)
			defer cancel()
			if err := registry.Shutdown(shutdownCtx); err != nil && serveErr == nil {
				serveErr = err
			}
			return serveErr
		},
	}
}

type generateOptions struct {
	prompts     []string
	counts      []int
	promptsFile string
	bulkFile    string
	style       string
	customStyle string
	aspect      string
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation and wait for it to finish",
		Example: `  pixelbatch generate --prompt "a red fox" --count 2 --style real
  pixelbatch generate --prompt "a clock showing 10:30" --prompt "a lighthouse" --count 3,1
  pixelbatch generate --bulk-file prompts.txt --aspect 16:9
  pixelbatch generate --prompts-file prompts.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := buildCommand(g, cmd.Flags().Changed, opts.stdin)
			if err != nil {
				return err
			}

			console := NewConsole(opts.stdout)
			app, err := opts.app("warn", console.ImageSaved)
			if err != nil {
				return err
			}
			defer app.Close()

			unsubscribe := app.Status.Subscribe(console.Status)
			defer unsubscribe()

			result, err := app.Service.Run(cmd.Context(), command)
			if err != nil {
				if isRejection(err) {
					return usageError{err: err}
				}
				return err
			}
			console.Summary(result)
			if len(result.Images) == 0 {
				return errors.New("no images were generated")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&g.prompts, "prompt", "p", nil, "prompt to generate (repeatable)")
	f.IntSliceVarP(&g.counts, "count", "n", nil, "images per prompt: one value for all prompts, or one per --prompt")
	f.StringVar(&g.promptsFile, "prompts-file", "", "YAML file of prompts and options")
	f.StringVar(&g.bulkFile, "bulk-file", "", `text file with one prompt per line ("-" for stdin)`)
	f.StringVarP(&g.style, "style", "s", string(core.ModePixel), "style: pixel, stickfigure, real or custom")
	f.StringVar(&g.customStyle, "custom-style", "", "style text used with --style custom")
	f.StringVarP(&g.aspect, "aspect", "a", string(core.AspectSquare), "aspect ratio: 1:1, 16:9, 9:16, 4:3 or 3:4")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompts-file", "bulk-file")
	return cmd
}

func isRejection(err error) bool {
	return errors.Is(err, generation.ErrNoCredentials) ||
		errors.Is(err, generation.ErrNoValidPrompts) ||
		errors.Is(err, generation.ErrInvalidAspect) ||
		errors.Is(err, generation.ErrInvalidCount) ||
		errors.Is(err, generation.ErrRunInProgress)
}

// buildCommand turns generate flags into a command. changed reports
// whether a flag was set explicitly; explicit style and aspect flags
// override a prompts file.
func buildCommand(g *generateOptions, changed func(string) bool, stdin io.Reader) (generation.GenerateCommand, error) {
	var cmd generation.GenerateCommand
	if len(g.counts) > 0 && len(g.prompts) == 0 {
		return cmd, usageErrorf("--count applies only to --prompt")
	}

	switch {
	case g.promptsFile != "":
		loaded, err := generation.LoadCommandFile(g.promptsFile)
		if err != nil {
			return cmd, err
		}
		cmd = loaded
	case g.bulkFile != "":
		text, err := readBulk(g.bulkFile, stdin)
		if err != nil {
			return cmd, err
		}
		cmd.PromptMode = core.PromptModeBulk
		cmd.BulkPrompts = text
	case len(g.prompts) > 0:
		descriptors, err := promptDescriptors(g.prompts, g.counts)
		if err != nil {
			return cmd, err
		}
		cmd.PromptMode = core.PromptModeSingle
		cmd.Prompts = descriptors
	default:
		return cmd, usageErrorf("one of --prompt, --prompts-file or --bulk-file is required")
	}

	if g.promptsFile == "" || changed("style") {
		cmd.GenerationMode = generation.ParseGenerationMode(g.style)
	}
	if g.promptsFile == "" || changed("custom-style") {
		cmd.CustomStyle = g.customStyle
	}
	if g.promptsFile == "" || changed("aspect") {
		aspect, err := core.ParseAspectRatio(g.aspect)
		if err != nil {
			return cmd, usageError{err: err}
		}
		cmd.AspectRatio = aspect
	}
	return cmd, nil
}

// promptDescriptors pairs --prompt values with --count values. No counts
// means one image per prompt, a single count applies to every prompt, and
// otherwise there must be one count per prompt. Prompt text is used as
// given.
func promptDescriptors(prompts []string, counts []int) ([]core.PromptDescriptor, error) {
	switch len(counts) {
	case 0, 1, len(prompts):
	default:
		return nil, usageErrorf("got %d --count values for %d prompts; give one, or one per prompt", len(counts), len(prompts))
	}

	descriptors := make([]core.PromptDescriptor, 0, len(prompts))
	for i, text := range prompts {
		count := 1
		switch len(counts) {
		case 0:
		case 1:
			count = counts[0]
		default:
			count = counts[i]
		}
		if count < 1 {
			return nil, usageError{err: fmt.Errorf("%w: --count %d", generation.ErrInvalidCount, count)}
		}
		descriptors = append(descriptors, core.PromptDescriptor{ID: strconv.Itoa(i + 1), Text: text, Count: count})
	}
	return descriptors, nil
}

func readBulk(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			return "", fmt.Errorf("read prompts from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read bulk file: %w", err)
	}
	return string(data), nil
}

func newImagesCmd(opts *rootOptions) *cobra.Command {
	images := &cobra.Command{
		Use:   "images",
		Short: "List, export and delete stored images",
	}

	images.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Images.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(opts.stdout, "No images stored.")
				return nil
			}

			w := tabwriter.NewWriter(opts.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tPROMPT #\tCREATED\tPROMPT")
			for i, rec := range records {
				idx := "-"
				if rec.PromptIndex != nil {
					idx = strconv.Itoa(*rec.PromptIndex)
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
					len(records)-i, rec.ID, idx, rec.CreatedAt.Format(time.DateTime), truncate(rec.Prompt, 60))
			}
			return w.Flush()
		},
	})

	images.AddCommand(&cobra.Command{
		Use:   "delete ID...",
		Short: "Delete images by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Images.DeleteMany(cmd.Context(), ids); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Successfully deleted %d image(s).\n", len(ids))
			return nil
		},
	})

	var outDir string
	var all bool
	export := &cobra.Command{
		Use:   "export [ID...]",
		Short: "Write selected images as a JPEG or a zip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Images.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if all {
				ids = ids[:0]
				for _, rec := range records {
					ids = append(ids, rec.ID)
				}
			}

			dl, err := archive.Build(records, ids)
			if errors.Is(err, archive.ErrNothingSelected) {
				return usageError{err: errors.New(webui.MessageNothingToDownload)}
			}
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, dl.Filename)
			if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Exported %d image(s) to %s\n", dl.Count, path)
			return nil
		},
	}
	export.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write the export to")
	export.Flags().BoolVar(&all, "all", false, "export every stored image")
	images.AddCommand(export)

	return images
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, usageErrorf("invalid image id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage the API key pool",
	}

	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys (masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			pool, err := app.Keys.LoadCredentials(cmd.Context())
			if err != nil {
				return err
			}
			if len(pool) == 0 {
				fmt.Fprintln(opts.stdout, generation.MessageNoCredentials)
				return nil
			}
			for i, k := range pool {
				fmt.Fprintf(opts.stdout, "Key %d  %s\n", i+1, db.MaskCredential(k))
			}
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "add KEY",
		Short: `Add a key ("-" reads it from stdin)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if key == "-" {
				line, err := bufio.NewReader(opts.stdin).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				key = line
			}

			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			added, err := app.Keys.AddCredential(cmd.Context(), key)
			if err != nil {
				return err
			}
			if !added {
				return usageErrorf("key is empty or already present")
			}
			fmt.Fprintf(opts.stdout, "Added key %s\n", db.MaskCredential(strings.TrimSpace(key)))
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "remove N",
		Short: "Remove the key at position N (as shown by list)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return usageErrorf("invalid key position %q", args[0])
			}
			app, err := opts.app("warn", nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Keys.RemoveCredential(cmd.Context(), n-1); err != nil {
				if errors.Is(err, db.ErrCredentialIndex) {
					return usageErrorf("no key at position %d", n)
				}
				return err
			}
			fmt.Fprintf(opts.stdout, "Removed key %d\n", n)
			return nil
		},
	})

	return keys
}
