package main

import (
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/db"
	"pixelbatch/generation"
	"pixelbatch/imagegen"
	"pixelbatch/logging"
)

// App holds the wired components shared by every command.
type App struct {
	Config       *core.Config
	Log          *logging.Logger
	DB           *db.Database
	Images       *db.ImageRepository
	Keys         *db.CredentialRepository
	Status       *generation.StatusBoard
	Orchestrator *generation.Orchestrator
	Service      *generation.Service
}

// appOptions controls how openApp builds the App.
type appOptions struct {
	envFile string
	// logLevel applies when LOG_LEVEL is unset.
	logLevel string
	// onImage is called with every record a run stores.
	onImage func(core.ImageRecord)
}

// loadEnv loads the .env file. A missing file is not an error.
func loadEnv(path string, stderr io.Writer) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(stderr, "Warning: .env file not found: %v\n", err)
	}
}

// openApp loads configuration, opens storage and wires the generation
// engine. Callers must Close the App.
func openApp(opts appOptions, stderr io.Writer) (*App, error) {
	loadEnv(opts.envFile, stderr)

	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if level == "" {
		level = opts.logLevel
	}
	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       level,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	app, err := newApp(cfg, logger, opts.onImage)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}

// newApp wires the components for cfg.
func newApp(cfg *core.Config, logger *logging.Logger, onImage func(core.ImageRecord)) (*App, error) {
	logger.Debug("configuration loaded",
		zap.String("data_dir", cfg.DataDir),
		zap.String("db_path", cfg.DBPath),
		zap.String("provider", cfg.ImageProvider),
		zap.String("model", cfg.ImageModel),
		zap.Duration("ai_timeout", cfg.AITimeout),
		zap.Duration("generation_delay", cfg.GenerationDelay),
		zap.Bool("allow_self_signed_certs", cfg.AllowSelfSignedCerts),
		zap.Bool("dev_mode", cfg.DevMode))

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, core.ErrDataDir(cfg.DBPath, err.Error())
	}

	backend, err := imagegen.NewBackend(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	client, err := imagegen.NewClient(backend, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	images := db.NewImageRepository(database)
	keys := db.NewCredentialRepository(database, logger)
	board := generation.NewStatusBoard()

	orchOpts := []generation.Option{generation.WithDelay(cfg.GenerationDelay)}
	if onImage != nil {
		orchOpts = append(orchOpts, generation.WithImageListener(onImage))
	}
	orch, err := generation.NewOrchestrator(client, images, board, logger, orchOpts...)
	if err != nil {
		database.Close()
		return nil, err
	}
	svc, err := generation.NewService(orch, keys, board, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &App{
		Config:       cfg,
		Log:          logger,
		DB:           database,
		Images:       images,
		Keys:         keys,
		Status:       board,
		Orchestrator: orch,
		Service:      svc,
	}, nil
}

// Close waits for background runs, then closes storage and flushes logs.
func (a *App) Close() error {
	a.Service.Wait()
	err := a.DB.Close()
	_ = a.Log.Sync()
	return err
}
