// Package app wires configuration into a ready-to-use knowledge base
// registry: embedding backend, vector store provider, loaders.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/quixotic-maker/jarvis-sub000/internal/config"
	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
	"github.com/quixotic-maker/jarvis-sub000/internal/loader"
	"github.com/quixotic-maker/jarvis-sub000/internal/log"
	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// App holds the wired application components.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Embedder embedding.Embedder
	Registry *kb.Registry

	// Ready checks backend connectivity for the readiness probe. Nil when
	// the backend is embedded.
	Ready func(context.Context) error

	closers []func()
}

// Setup builds the application from configuration.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	embedder, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Embedder: embedder}

	provider, err := a.provideProvider(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, err
	}

	a.Registry = kb.NewRegistry(provider, embedder, loader.NewDispatcher(logger), logger)
	return a, nil
}

// Close releases held resources.
func (a *App) Close() {
	for _, closer := range a.closers {
		closer()
	}
}

// provideEmbedder initializes the configured embedding backend, wrapped
// with an optional rate limiter.
func provideEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (embedding.Embedder, error) {
	var backend embedding.Embedder

	switch cfg.Provider {
	case config.ProviderStatic:
		backend = &embedding.Static{}
		logger.Info("using static offline embedder")

	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit embedder registration (no auto-discovery).
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		backend = embedding.NewGenkit(ollama.Embedder(g, cfg.OllamaHost))
		logger.Info("initialized ollama embedder", "model", cfg.EmbedderModel, "host", cfg.OllamaHost)

	case config.ProviderGemini:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		backend = embedding.NewGenkit(googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel))
		logger.Info("initialized gemini embedder", "model", cfg.EmbedderModel)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}

	if cfg.EmbedRPS > 0 {
		backend = embedding.NewRateLimited(backend, cfg.EmbedRPS, 1)
	}
	return backend, nil
}

// provideProvider initializes the configured vector store backend.
func (a *App) provideProvider(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, logger log.Logger) (vectorstore.Provider, error) {
	switch cfg.VectorBackend {
	case config.BackendPgvector:
		dsn := cfg.PostgresDSN()
		if err := vectorstore.Migrate(dsn); err != nil {
			return nil, fmt.Errorf("migrating pgvector schema: %w", err)
		}
		provider, err := vectorstore.NewPgProvider(ctx, dsn, embedder, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, provider.Close)
		a.Ready = provider.Ping
		logger.Info("using pgvector backend", "host", cfg.PostgresHost, "db", cfg.PostgresDBName)
		return provider, nil

	case config.BackendChromem:
		if cfg.ChromemPath == "" {
			logger.Info("using in-memory chromem backend")
			return vectorstore.NewChromemProvider(embedder, logger), nil
		}
		provider, err := vectorstore.NewPersistentChromemProvider(cfg.ChromemPath, embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("opening chromem at %s: %w", cfg.ChromemPath, err)
		}
		logger.Info("using persistent chromem backend", "path", cfg.ChromemPath)
		return provider, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.VectorBackend)
	}
}
