package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/config"
	"github.com/asura-ai/asura/internal/core"
	db "github.com/asura-ai/asura/internal/core/database"
	"github.com/asura-ai/asura/internal/core/llm"
	"github.com/asura-ai/asura/internal/core/objectclient"
	"github.com/asura-ai/asura/internal/core/pipeline"
	"github.com/asura-ai/asura/internal/events"
	"github.com/asura-ai/asura/internal/logger"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Processor    *pipeline.Processor
	Hub          *events.Hub
	Server       *Server
	Log          *logrus.Logger

	cfg *config.Config
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	// Raw-file archive is optional: without credentials the pipeline simply
	// skips archival and manual retry is unavailable.
	var objClient core.ObjectClient
	if cfg.BucketName != "" {
		objClient, err = objectclient.NewS3Client(initCtx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("object storage archive initialized")
	} else {
		log.Warn("no archive bucket configured; raw uploads will not be retained")
	}

	llmProvider, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, err
	}
	embedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, err
	}

	hub := events.NewHub(log)

	processor := pipeline.NewProcessor(dbClient, objClient, llmProvider, embedder, hub, &pipeline.Config{
		MaxFileSizeMB: cfg.MaxUploadMB,
		MaxChars:      cfg.MaxCompressChars,
		MaxTokens:     cfg.MaxEmbedTokens,
		RetryAttempts: cfg.DBRetryAttempts,
		RetryBase:     cfg.DBRetryBase,
		ArchiveBucket: cfg.BucketName,
	}, log)

	server := NewServer(cfg, dbClient, processor, hub, log)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Processor:    processor,
		Hub:          hub,
		Server:       server,
		Log:          log,
		cfg:          cfg,
	}, nil
}

// Run starts the pipeline workers and the HTTP server and blocks until the
// context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.Processor.Start(ctx, a.cfg.PipelineWorkers)
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
