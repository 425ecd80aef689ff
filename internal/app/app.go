// Package app wires configuration, storage, the GenAI client and the engine
// together for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/easeaico/careertrack-agent/internal/config"
	"github.com/easeaico/careertrack-agent/internal/llm"
	"github.com/easeaico/careertrack-agent/internal/memory"
	"github.com/easeaico/careertrack-agent/internal/service"
)

// App holds the initialized components. Close releases the store.
type App struct {
	Config config.Config
	Store  memory.Store
	Client *llm.Client
	Engine *service.Engine
	Logger *slog.Logger
}

// Open creates and initializes all components.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	logger := cfg.Logger()

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(ctx, llm.ClientConfig{
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		ProModel:       cfg.ProModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Logger:         logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	engine, err := service.Open(ctx, service.Options{
		Store:           store,
		Reasoner:        client,
		Embedder:        client,
		Logger:          logger,
		WindowDays:      cfg.ReflectionWindowDays,
		MatchThreshold:  cfg.MatchThreshold,
		RecentContext:   cfg.RecentContext,
		DefaultTimezone: cfg.Timezone,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{Config: cfg, Store: store, Client: client, Engine: engine, Logger: logger}, nil
}

type schemaStore interface {
	memory.Store
	InitSchema(ctx context.Context) error
}

// OpenStore connects to the configured database and ensures its schema.
func OpenStore(ctx context.Context, cfg config.Config) (memory.Store, error) {
	store, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func connect(ctx context.Context, cfg config.Config) (schemaStore, error) {
	switch cfg.DBType {
	case "postgres":
		store, err := memory.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return store, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.DatabaseURL); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := memory.NewSQLiteStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
