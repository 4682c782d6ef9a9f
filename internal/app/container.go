package app

import (
	"context"
	"fmt"

	"github.com/storyduet/storyduet-go/internal/analysis"
	"github.com/storyduet/storyduet-go/internal/config"
	"github.com/storyduet/storyduet-go/internal/engine"
	"github.com/storyduet/storyduet-go/internal/service/ai"
	"github.com/storyduet/storyduet-go/internal/service/cache"
	"github.com/storyduet/storyduet-go/internal/session"
	"github.com/storyduet/storyduet-go/internal/store"
	"github.com/storyduet/storyduet-go/internal/transport"
	"go.uber.org/zap"
)

// Container bundles the assembled services. All heavy-weight initialization
// (DB/cache/AI) happens in Build so callers receive a fully-wired machine.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Machine *session.Machine
	Hub     *transport.Hub
	Cache   *cache.CacheService
	Store   *store.PostgresStore

	closers []func()
}

// Close tears down infrastructure in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Cache and database
	cacheSvc, err := cache.NewCacheService(cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache service: %w", err)
	}
	closers = append(closers, func() {
		_ = cacheSvc.Close()
	})

	storyStore, err := store.NewPostgresStore(store.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create story store: %w", err)
	}
	closers = append(closers, func() {
		_ = storyStore.Close()
	})

	if err := storyStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure story schema: %w", err)
	}

	// AI stack
	modelManager, err := ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultGeminiModel: cfg.Gemini.Model,
		DefaultOpenAIModel: cfg.OpenAI.Model,
		EnableFallback:     cfg.OpenAI.EnableFallback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	}

	generator := ai.NewStoryGenerator(modelManager, logger)
	turnEngine := engine.NewTurnEngine(generator, logger)
	pipeline := analysis.NewPipeline(generator, storyStore, logger)

	machine := session.NewMachine(session.Config{
		Engine:          turnEngine,
		Pipeline:        pipeline,
		Store:           storyStore,
		Snapshots:       cacheSvc,
		Logger:          logger,
		DefaultDuration: cfg.Session.DefaultDuration,
		DuologuePacing:  cfg.Session.DuologuePacing,
	})

	hub := transport.NewHub(machine, cacheSvc, storyStore, logger)
	closers = append(closers, hub.Close)

	// Completed analyses are cached for result-screen reloads.
	machine.Subscribe(func(ev session.Event) {
		if ev.Kind != session.EventAnalysis || ev.Analysis == nil {
			return
		}
		if cerr := cacheSvc.CacheAnalysis(context.Background(), ev.Analysis.StoryID, ev.Analysis); cerr != nil {
			logger.Debug("Analysis cache write failed", zap.Error(cerr))
		}
	})

	// A session interrupted by a restart resumes where it left off; anything
	// unresumable is cleared so clients start clean.
	if snap, lerr := cacheSvc.LoadSnapshot(ctx); lerr != nil {
		logger.Warn("Session snapshot load failed", zap.Error(lerr))
	} else if snap != nil {
		if rerr := machine.Restore(ctx, snap); rerr != nil {
			logger.Info("Discarding stale session snapshot", zap.Error(rerr))
			if cerr := cacheSvc.ClearSnapshot(ctx); cerr != nil {
				logger.Debug("Snapshot clear failed", zap.Error(cerr))
			}
		}
	}

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Machine: machine,
		Hub:     hub,
		Cache:   cacheSvc,
		Store:   storyStore,
		closers: closers,
	}, nil
}
