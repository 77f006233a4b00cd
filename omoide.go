// Package omoide is the public API for embedding the memory service.
//
// Consumers construct and run the server without forking it:
//
//	app, err := omoide.New(
//	    omoide.WithVersion(version),
//	    omoide.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: omoide (root) imports
// internal/*, but internal/* never imports the root. Public extension
// interfaces (EmbeddingProvider, CrossEncoder) are standalone; the
// adapters bridging them to internal types live here because this is the
// only file that sees both sides of the boundary.
package omoide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/classify"
	"github.com/kaigo-labs/omoide/internal/config"
	"github.com/kaigo-labs/omoide/internal/graph"
	"github.com/kaigo-labs/omoide/internal/mcp"
	"github.com/kaigo-labs/omoide/internal/model"
	"github.com/kaigo-labs/omoide/internal/planner"
	"github.com/kaigo-labs/omoide/internal/preprocess"
	"github.com/kaigo-labs/omoide/internal/rerank"
	"github.com/kaigo-labs/omoide/internal/search"
	"github.com/kaigo-labs/omoide/internal/server"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
	"github.com/kaigo-labs/omoide/internal/session"
	"github.com/kaigo-labs/omoide/internal/storage"
	"github.com/kaigo-labs/omoide/internal/telemetry"
	"github.com/kaigo-labs/omoide/migrations"
)

// App is the memory service lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	sess         *session.Context
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the memory service. It connects to the database, runs
// migrations, resolves the elderly profile scope, and wires the retrieval
// pipeline, flows, and HTTP facade. It does not start goroutines or accept
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.elderlyID != "" {
		cfg.ElderlyID = o.elderlyID
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("omoide starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	key, err := cfg.EncryptionKey()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("config: %w", err)
	}
	var cipher *storage.Cipher
	if key != nil {
		cipher = storage.NewCipher(key)
	} else {
		logger.Warn("profile encryption disabled (no DATABASE_ENCRYPTION_KEY)")
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, storage.DefaultPoolConfig(), cipher, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	fail := func(err error) (*App, error) {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		return fail(fmt.Errorf("migrations: %w", err))
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			return fail(fmt.Errorf("extra migrations[%d]: %w", i, err))
		}
	}

	// Verify critical tables exist after migration; a missing table here
	// means the vector or pg_search extension could not be created.
	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'short_term_memory')`,
	).Scan(&schemaOK); err != nil {
		return fail(fmt.Errorf("schema verification: %w", err))
	}
	if !schemaOK {
		return fail(fmt.Errorf("critical table 'short_term_memory' does not exist after migration — check that the vector and pg_search extensions can be created"))
	}

	// Embedding provider and cross-encoder: external overrides, else one
	// shared TEI client (the /rerank endpoint serves the cross-encoder).
	tei := embedding.NewTEIProvider(cfg.EmbedURL, cfg.RerankURL, cfg.EmbeddingDimensions)
	var embedder embedding.Provider = tei
	if o.embeddingProvider != nil {
		embedder = &providerAdapter{p: o.embeddingProvider}
	}
	var ce embedding.CrossEncoder = tei
	if o.crossEncoder != nil {
		ce = o.crossEncoder
	}

	// Planner for the online flow. Without an API key the online flow
	// rejects requests; offline still works.
	var plan planner.Planner
	if cfg.OpenAIAPIKey != "" {
		plan, err = planner.NewOpenAIPlanner(cfg.OpenAIAPIKey, cfg.PlannerModel)
		if err != nil {
			return fail(fmt.Errorf("planner: %w", err))
		}
		logger.Info("online flow: enabled", "model", cfg.PlannerModel)
	} else {
		logger.Info("online flow: disabled (no OPENAI_API_KEY)")
	}

	// Classifiers: external service when configured, keyword fallback
	// otherwise.
	var qa classify.QAClassifier
	var topics classify.TopicClassifier
	if cfg.ClassifierURL != "" {
		hc := classify.NewHTTPClassifier(cfg.ClassifierURL)
		qa, topics = hc, hc
		logger.Info("classifiers: http", "url", cfg.ClassifierURL)
	} else {
		kc := classify.KeywordClassifier{}
		qa, topics = kc, kc
		logger.Info("classifiers: keyword (no OMOIDE_CLASSIFIER_URL)")
	}

	var pre preprocess.Preprocessor = preprocess.Splitter{}
	if cfg.PreprocessorURL != "" {
		pre = preprocess.NewHTTPPreprocessor(cfg.PreprocessorURL)
		logger.Info("preprocessor: http", "url", cfg.PreprocessorURL)
	}

	elderlyID, err := resolveElderly(context.Background(), db, cfg.ElderlyID, logger)
	if err != nil {
		return fail(err)
	}

	sess := &session.Context{
		ElderlyID: elderlyID,
		Index:     search.New(db, logger),
		Writer:    db,
		Embedder:  embedder,
		Reranker:  rerank.New(ce, logger),
		Planner:   plan,
	}
	if err := sess.Validate(); err != nil {
		return fail(fmt.Errorf("session: %w", err))
	}

	graphCfg := graph.Config{
		Retrieval: search.Params{
			TopK:          cfg.RetrievalTopK,
			Alpha:         cfg.HybridAlpha,
			SimThreshold:  cfg.SimThresholdPtr(),
			FuzzyDistance: cfg.FuzzyDistance,
		},
		Rerank: rerank.Options{
			AlphaMMR:    cfg.MMRAlpha,
			BetaRecency: cfg.RecencyBeta,
			TopK:        cfg.RerankTopK,
		},
		BucketTimeout: cfg.BucketTimeout,
	}

	srvCfg := server.ServerConfig{
		DB:                  db,
		Session:             sess,
		GraphConfig:         graphCfg,
		Router:              classify.NewRouter(qa, topics, logger),
		Preprocessor:        pre,
		Embedder:            embedder,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	}
	if cfg.MCPEnabled {
		srvCfg.MCPServer = mcp.New(sess, graphCfg, db, version, logger).MCPServer()
	}

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          server.New(srvCfg),
		sess:         sess,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// resolveElderly pins the conversation scope. A configured id must point
// at an existing profile; with no id configured a fresh profile is created
// and its id logged so operators can pin it for the next boot.
func resolveElderly(ctx context.Context, db *storage.DB, configured string, logger *slog.Logger) (uuid.UUID, error) {
	if configured != "" {
		id, err := uuid.Parse(configured)
		if err != nil {
			return uuid.Nil, fmt.Errorf("elderly id: %w", err)
		}
		if _, err := db.GetProfile(ctx, id); err != nil {
			return uuid.Nil, fmt.Errorf("elderly profile %s: %w", id, err)
		}
		return id, nil
	}

	profile, err := db.CreateProfile(ctx, model.Profile{Name: "resident"})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create default profile: %w", err)
	}
	logger.Warn("no OMOIDE_ELDERLY_ID configured, created a fresh profile — memories will not survive a restart unless this id is pinned",
		"elderly_id", profile.ID)
	return profile.ID, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown has already been called.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the database pool
// and OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("omoide shutting down")

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("omoide stopped")
	return nil
}

// ElderlyID returns the profile id this App's conversations are scoped to.
func (a *App) ElderlyID() uuid.UUID {
	return a.sess.ElderlyID
}

// Handler returns the root HTTP handler, for embedding the server in an
// existing mux or for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// providerAdapter bridges the public EmbeddingProvider to the internal
// pgvector-typed interface.
type providerAdapter struct {
	p EmbeddingProvider
}

func (a *providerAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a *providerAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	raw, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(raw))
	for i, v := range raw {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (a *providerAdapter) Dimensions() int {
	return a.p.Dimensions()
}
