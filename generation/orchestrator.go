package generation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pixelbatch/core"
	"pixelbatch/imagegen"
	"pixelbatch/logging"
)

// ImageGenerator is the remote generation client. *imagegen.Client
// satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, aspect core.AspectRatio, count int, credential string) ([]string, error)
}

// Policy names the dispatch strategy chosen for a run.
type Policy string

const (
	// PolicySequential runs tasks one at a time with the first credential
	// and waits between tasks. Used when the pool has one credential.
	PolicySequential Policy = "sequential"
	// PolicyParallel runs batches the size of the pool, one task per
	// credential, with a barrier between batches.
	PolicyParallel Policy = "parallel"
)

// RunState is the lifecycle of a run.
type RunState string

const (
	RunIdle     RunState = "idle"
	RunRunning  RunState = "running"
	RunComplete RunState = "complete"
)

// RunRequest is a validated run: expanded tasks and a credential snapshot.
type RunRequest struct {
	RunID       string
	Tasks       []core.GenerationTask
	Credentials []string
	AspectRatio core.AspectRatio
	Style       StyleConfig
}

// TaskFailure records one task that produced no stored image.
type TaskFailure struct {
	Task core.GenerationTask
	// Position is the 1-based position of the task in the run.
	Position int
	// CredentialSlot is the 1-based pool position of the credential used.
	CredentialSlot int
	Err            error
}

// Message is the user-facing description of the failure.
func (f TaskFailure) Message() string {
	return userMessage(f.Err)
}

// RunResult is what a finished run produced.
type RunResult struct {
	RunID  string
	State  RunState
	Policy Policy
	// Images holds the stored records, most recently completed first.
	Images   []core.ImageRecord
	Failures []TaskFailure
	Started  time.Time
	Finished time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDelay sets the wait between sequential tasks.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithSleeper replaces the delay implementation. Tests use it to record
// waits without sleeping.
func WithSleeper(fn func(ctx context.Context, d time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithIDFunc replaces core.NewImageID.
func WithIDFunc(fn func() int64) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithImageListener registers fn to be called with every stored record.
func WithImageListener(fn func(core.ImageRecord)) Option {
	return func(o *Orchestrator) { o.onImage = fn }
}

// Orchestrator executes runs. It holds no per-run state, so one
// Orchestrator may serve many runs; the Service enforces one at a time.
type Orchestrator struct {
	gen     ImageGenerator
	store   core.ImageStore
	status  *StatusBoard
	log     *logging.Logger
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration)
	newID   func() int64
	now     func() time.Time
	onImage func(core.ImageRecord)
}

// NewOrchestrator creates an Orchestrator with the default 3 s delay.
func NewOrchestrator(gen ImageGenerator, store core.ImageStore, status *StatusBoard, log *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generation: generator cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("generation: store cannot be nil")
	}
	if status == nil {
		return nil, fmt.Errorf("generation: status board cannot be nil")
	}
	if log == nil {
		log = logging.NewNop()
	}

	o := &Orchestrator{
		gen:    gen,
		store:  store,
		status: status,
		log:    log.Named("orchestrator"),
		delay:  core.DefaultGenerationDelayMs * time.Millisecond,
		sleep:  sleepContext,
		newID:  core.NewImageID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes every task exactly once and always finishes in
// RunComplete. Task failures are reported in the result, not as an error;
// the only errors are the empty-input preconditions.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if len(req.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	if len(req.Tasks) == 0 {
		return nil, ErrNoValidPrompts
	}

	run := &runState{
		req:   req,
		creds: slices.Clone(req.Credentials),
		log:   o.log.With(zap.String("run_id", req.RunID)),
		result: &RunResult{
			RunID:   req.RunID,
			State:   RunRunning,
			Started: o.now(),
		},
	}

	if len(run.creds) <= 1 {
		run.result.Policy = PolicySequential
	} else {
		run.result.Policy = PolicyParallel
	}
	run.log.Info("run started",
		zap.String("policy", string(run.result.Policy)),
		zap.Int("tasks", len(req.Tasks)),
		zap.Int("key_count", len(run.creds)),
		zap.String("aspect_ratio", string(req.AspectRatio)),
		zap.String("style", string(req.Style.Mode)))

	if run.result.Policy == PolicySequential {
		o.runSequential(ctx, run)
	} else {
		o.runParallel(ctx, run)
	}

	run.result.State = RunComplete
	run.result.Finished = o.now()
	o.status.Set(Status{
		Message:   "Complete!",
		Kind:      StatusComplete,
		RunID:     req.RunID,
		Processed: len(req.Tasks),
		Total:     len(req.Tasks),
	})
	run.log.Info("run complete",
		zap.Int("images", len(run.result.Images)),
		zap.Int("failures", len(run.result.Failures)),
		zap.Duration("elapsed", run.result.Finished.Sub(run.result.Started)))
	return run.result, nil
}

// runState is the mutable state of one run. mu guards result.
type runState struct {
	req    RunRequest
	creds  []string
	log    *logging.Logger
	mu     sync.Mutex
	result *RunResult
}

func (r *runState) addImage(rec core.ImageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Images = append([]core.ImageRecord{rec}, r.result.Images...)
}

func (r *runState) addFailure(f TaskFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Failures = append(r.result.Failures, f)
}

func (o *Orchestrator) runSequential(ctx context.Context, run *runState) {
	tasks := run.req.Tasks
	total := len(tasks)
	cred := run.creds[0]

	for i, task := range tasks {
		pos := i + 1
		o.status.Set(Status{
			Message:   fmt.Sprintf("[Key 1] Generating image %d/%d: \"%s\"", pos, total, task.OriginalPrompt),
			Kind:      StatusProgress,
			RunID:     run.req.RunID,
			Processed: pos,
			Total:     total,
			Running:   true,
		})

		if err := o.runTask(ctx, run, task, cred); err != nil {
			run.addFailure(TaskFailure{Task: task, Position: pos, CredentialSlot: 1, Err: err})
			run.log.Error("task failed",
				zap.Int("position", pos),
				zap.Object("task", task),
				zap.Int("credential_index", 1),
				zap.Error(err))
			o.status.Set(Status{
				Message:   fmt.Sprintf("Error on prompt #%d: \"%s\". %s", task.PromptIndex, task.OriginalPrompt, userMessage(err)),
				Kind:      StatusError,
				RunID:     run.req.RunID,
				Processed: pos,
				Total:     total,
				Running:   true,
			})
		} else if pos < total {
			o.status.Set(Status{
				Message:   fmt.Sprintf("Waiting %s seconds...", formatSeconds(o.delay)),
				Kind:      StatusInfo,
				RunID:     run.req.RunID,
				Processed: pos,
				Total:     total,
				Running:   true,
			})
		}

		if pos < total {
			o.sleep(ctx, o.delay)
		}
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, run *runState) {
	tasks := run.req.Tasks
	total := len(tasks)
	poolSize := len(run.creds)
	batches := (total + poolSize - 1) / poolSize

	for b := 0; b < batches; b++ {
		start := b * poolSize
		end := min(start+poolSize, total)

		o.status.Set(Status{
			Message:   fmt.Sprintf("Processing batch %d/%d (%d/%d images)...", b+1, batches, end, total),
			Kind:      StatusProgress,
			RunID:     run.req.RunID,
			Processed: end,
			Total:     total,
			Running:   true,
		})
		run.log.Debug("batch dispatched", zap.Int("batch", b+1), zap.Int("size", end-start))

		// Tasks never return an error to the group, so one failure does
		// not cancel its siblings; Wait is the batch barrier.
		var g errgroup.Group
		var failMu sync.Mutex
		var batchFailures []TaskFailure
		for i, task := range tasks[start:end] {
			slot := i + 1
			pos := start + i + 1
			g.Go(func() error {
				if err := o.runTask(ctx, run, task, run.creds[slot-1]); err != nil {
					failMu.Lock()
					batchFailures = append(batchFailures, TaskFailure{Task: task, Position: pos, CredentialSlot: slot, Err: err})
					failMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		slices.SortFunc(batchFailures, func(a, b TaskFailure) int { return a.Position - b.Position })
		for _, f := range batchFailures {
			run.addFailure(f)
			run.log.Error("task failed",
				zap.Int("position", f.Position),
				zap.Object("task", f.Task),
				zap.Int("credential_index", f.CredentialSlot),
				zap.Error(f.Err))
			o.status.Set(Status{
				Message:   fmt.Sprintf("Error with key %d on prompt #%d. Check logs.", f.CredentialSlot, f.Task.PromptIndex),
				Kind:      StatusError,
				RunID:     run.req.RunID,
				Processed: end,
				Total:     total,
				Running:   true,
			})
		}
	}
}

// runTask generates one image, persists it and only then adds it to the
// run's results.
func (o *Orchestrator) runTask(ctx context.Context, run *runState, task core.GenerationTask, cred string) error {
	prompt := run.req.Style.FinalPrompt(task.OriginalPrompt)
	payloads, err := o.gen.Generate(ctx, prompt, run.req.AspectRatio, 1, cred)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return imagegen.NewGenerationError(imagegen.ErrGenerationFailed, imagegen.MessageNoImageData, nil)
	}

	promptIndex := task.PromptIndex
	rec := core.ImageRecord{
		ID:          o.newID(),
		Src:         core.JPEGDataURI(payloads[0]),
		Prompt:      task.OriginalPrompt,
		PromptIndex: &promptIndex,
		CreatedAt:   o.now(),
	}
	// A generated image is kept even if the run's context was cancelled.
	if err := o.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
	}

	run.addImage(rec)
	if o.onImage != nil {
		o.onImage(rec)
	}
	return nil
}

// userMessage is the status text for a failed task.
func userMessage(err error) string {
	if errors.Is(err, ErrStoreWriteFailed) {
		return "Failed to save image."
	}
	return imagegen.UserMessage(err)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
