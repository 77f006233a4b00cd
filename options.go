package omoide

import (
	"context"
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port              int
	databaseURL       string
	logger            *slog.Logger
	version           string
	elderlyID         string
	embeddingProvider EmbeddingProvider
	crossEncoder      CrossEncoder
	extraMigrations   []fs.FS
}

// EmbeddingProvider generates embeddings for memory text. Implementations
// replace the default TEI-backed provider.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CrossEncoder scores query/text pairs for relevance. Implementations
// replace the default TEI-backed reranker model.
type CrossEncoder interface {
	Scores(ctx context.Context, query string, texts []string) ([]float64, error)
}

// WithPort overrides the TCP port from config (OMOIDE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported by the health endpoint and
// logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithElderlyID pins the conversation scope to an existing profile,
// overriding OMOIDE_ELDERLY_ID. When neither is set a profile is created
// at startup.
func WithElderlyID(id string) Option {
	return func(o *resolvedOptions) { o.elderlyID = id }
}

// WithEmbeddingProvider replaces the TEI embedding backend.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithCrossEncoder replaces the TEI cross-encoder used for reranking.
func WithCrossEncoder(ce CrossEncoder) Option {
	return func(o *resolvedOptions) { o.crossEncoder = ce }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems apply in
// registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
