package generation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/logging"
)

// GenerateCommand is a request to generate images, as submitted by the
// HTTP API or the CLI.
type GenerateCommand struct {
	PromptMode     core.PromptMode         `json:"promptMode"`
	Prompts        []core.PromptDescriptor `json:"prompts,omitempty"`
	BulkPrompts    string                  `json:"bulkPrompts,omitempty"`
	GenerationMode core.GenerationMode     `json:"generationMode"`
	CustomStyle    string                  `json:"customStyle,omitempty"`
	AspectRatio    core.AspectRatio        `json:"aspectRatio"`
}

// Status messages for rejected commands.
const (
	MessageNoCredentials = "Please add at least one Gemini API key in Settings."
	MessageNoBulkPrompts = "Please enter at least one prompt in the text area."
	MessageNoPrompts     = "Please enter at least one valid prompt."
	MessageBadAspect     = "Please choose a supported aspect ratio."
	MessageBadCount      = "Each prompt must generate at least 1 image."
)

// Service validates commands, snapshots the credential pool and runs the
// Orchestrator, allowing one run at a time.
type Service struct {
	orch   *Orchestrator
	creds  core.CredentialStore
	status *StatusBoard
	log    *logging.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *RunResult
}

// NewService creates a Service.
func NewService(orch *Orchestrator, creds core.CredentialStore, status *StatusBoard, log *logging.Logger) (*Service, error) {
	if orch == nil || creds == nil || status == nil {
		return nil, fmt.Errorf("generation: orchestrator, credential store and status board are required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{orch: orch, creds: creds, status: status, log: log.Named("service")}, nil
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}

// LastResult returns the most recent finished run, or nil.
func (s *Service) LastResult() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run validates cmd and executes it, returning when the run is complete.
func (s *Service) Run(ctx context.Context, cmd GenerateCommand) (*RunResult, error) {
	req, err := s.prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer s.running.Store(false)
	return s.execute(ctx, req)
}

// Start validates cmd synchronously, then executes it in the background
// and returns the run id. ctx must outlive the run; it is not a request
// context.
func (s *Service) Start(ctx context.Context, cmd GenerateCommand) (string, error) {
	req, err := s.prepare(ctx, cmd)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.execute(ctx, req); err != nil {
			s.log.Error("background run failed", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}()
	return req.RunID, nil
}

// Wait blocks until background runs started with Start have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// prepare takes the run guard and builds a RunRequest. On error the guard
// is released and the status board carries the reason.
func (s *Service) prepare(ctx context.Context, cmd GenerateCommand) (req RunRequest, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunRequest{}, ErrRunInProgress
	}
	defer func() {
		if err != nil {
			s.running.Store(false)
		}
	}()

	creds, err := s.creds.LoadCredentials(ctx)
	if err != nil {
		return RunRequest{}, fmt.Errorf("generation: load credentials: %w", err)
	}
	if len(creds) == 0 {
		s.reject(MessageNoCredentials)
		return RunRequest{}, ErrNoCredentials
	}

	aspect := cmd.AspectRatio
	if aspect == "" {
		aspect = core.AspectSquare
	}
	if !aspect.Valid() {
		s.reject(MessageBadAspect)
		return RunRequest{}, fmt.Errorf("%w: %q", ErrInvalidAspect, aspect)
	}

	if cmd.PromptMode != core.PromptModeBulk {
		if err := CheckCounts(cmd.Prompts); err != nil {
			s.reject(MessageBadCount)
			return RunRequest{}, err
		}
	}

	tasks, err := Expand(cmd.PromptMode, cmd.Prompts, cmd.BulkPrompts)
	if err != nil {
		if cmd.PromptMode == core.PromptModeBulk {
			s.reject(MessageNoBulkPrompts)
		} else {
			s.reject(MessageNoPrompts)
		}
		return RunRequest{}, err
	}

	return RunRequest{
		RunID:       uuid.NewString(),
		Tasks:       tasks,
		Credentials: creds,
		AspectRatio: aspect,
		Style:       StyleConfig{Mode: ParseGenerationMode(string(cmd.GenerationMode)), Custom: cmd.CustomStyle},
	}, nil
}

func (s *Service) reject(message string) {
	s.status.Set(Status{Message: message, Kind: StatusError})
}

func (s *Service) execute(ctx context.Context, req RunRequest) (*RunResult, error) {
	result, err := s.orch.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result, nil
}
