package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/kaigo-labs/omoide/internal/model"
)

// bucketSpec parameterizes the hybrid-search SQL for one memory bucket:
// which table to hit, which columns to hydrate, which text columns the
// lexical path matches, and how to scan a row into a Candidate.
type bucketSpec struct {
	table      string
	columns    string
	textFields []string
	scan       func(rows pgx.Rows) (model.Candidate, float64, error)
}

var bucketSpecs = map[model.Bucket]bucketSpec{
	model.BucketShortTerm: {
		table:      "short_term_memory",
		columns:    "id, content, created_at, embedding",
		textFields: []string{"content"},
		scan: func(rows pgx.Rows) (model.Candidate, float64, error) {
			var c model.Candidate
			var createdAt time.Time
			var score float64
			if err := rows.Scan(&c.ID, &c.Content, &createdAt, &c.Embedding, &score); err != nil {
				return model.Candidate{}, 0, err
			}
			c.Bucket = model.BucketShortTerm
			c.CreatedAt = &createdAt
			return c, score, nil
		},
	},
	model.BucketLongTerm: {
		table:      "long_term_memory",
		columns:    "id, category::text, key, value, last_updated, embedding",
		textFields: []string{"category_search", "key", "value"},
		scan: func(rows pgx.Rows) (model.Candidate, float64, error) {
			var c model.Candidate
			var lastUpdated time.Time
			var score float64
			if err := rows.Scan(&c.ID, &c.Category, &c.Key, &c.Value, &lastUpdated, &c.Embedding, &score); err != nil {
				return model.Candidate{}, 0, err
			}
			c.Bucket = model.BucketLongTerm
			c.LastUpdated = &lastUpdated
			return c, score, nil
		},
	},
	model.BucketHealthcare: {
		table:      "healthcare_records",
		columns:    "id, record_type::text, description, diagnosis_date, last_updated, embedding",
		textFields: []string{"record_type_search", "description"},
		scan: func(rows pgx.Rows) (model.Candidate, float64, error) {
			var c model.Candidate
			var diagnosisDate *time.Time
			var lastUpdated time.Time
			var score float64
			if err := rows.Scan(&c.ID, &c.RecordType, &c.Description, &diagnosisDate, &lastUpdated, &c.Embedding, &score); err != nil {
				return model.Candidate{}, 0, err
			}
			c.Bucket = model.BucketHealthcare
			c.DiagnosisDate = diagnosisDate
			c.LastUpdated = &lastUpdated
			return c, score, nil
		},
	},
}

// DenseSearch runs cosine kNN over one bucket's embedding column, scoped to
// elderlyID. When simThreshold is non-nil the inner kNN scan is widened to
// 5x topK so the similarity filter still has enough rows to fill topK.
// The returned candidates carry EmbScore (cosine similarity, higher better).
func (db *DB) DenseSearch(ctx context.Context, bucket model.Bucket, elderlyID uuid.UUID, embedding pgvector.Vector, topK int, simThreshold *float64) ([]model.Candidate, error) {
	spec, ok := bucketSpecs[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: unknown bucket %q", model.ErrValidation, bucket)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", model.ErrValidation)
	}

	innerLimit := topK
	filter := ""
	args := []any{elderlyID, embedding}
	if simThreshold != nil {
		innerLimit = 5 * topK
		filter = "WHERE 1 - distance >= $3"
		args = append(args, *simThreshold)
	}

	// MATERIALIZED pins the kNN scan inside the CTE so the similarity
	// filter cannot be pushed down and defeat the vector index.
	query := fmt.Sprintf(`
		WITH nearest AS MATERIALIZED (
			SELECT %[1]s, embedding <=> $2 AS distance
			FROM %[2]s
			WHERE elderly_id = $1 AND embedding IS NOT NULL
			ORDER BY distance
			LIMIT %[3]d
		)
		SELECT %[1]s, 1 - distance AS similarity
		FROM nearest
		%[4]s
		ORDER BY distance
		LIMIT %[5]d`,
		spec.columns, spec.table, innerLimit, filter, topK)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: dense search %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, similarity, err := spec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan dense %s: %w", bucket, err)
		}
		c.EmbScore = similarity
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: dense search %s: %w", bucket, err)
	}
	return out, nil
}

// LexicalSearch runs BM25 matching with fuzzy fallback over one bucket's
// text columns, scoped to elderlyID. Scores are raw BM25 (unnormalized);
// the caller normalizes per response. Ties sort by id so results are
// deterministic.
func (db *DB) LexicalSearch(ctx context.Context, bucket model.Bucket, elderlyID uuid.UUID, query string, fuzzyDistance, topK int) ([]model.Candidate, error) {
	spec, ok := bucketSpecs[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: unknown bucket %q", model.ErrValidation, bucket)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrValidation)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", model.ErrValidation)
	}
	if fuzzyDistance < 0 {
		return nil, fmt.Errorf("%w: fuzzy distance must be non-negative", model.ErrValidation)
	}

	// Exact BM25 match OR per-field fuzzy match. The field name and
	// distance are trusted constants; only the query text is a parameter.
	parts := make([]string, 0, len(spec.textFields)*2)
	for _, field := range spec.textFields {
		parts = append(parts, fmt.Sprintf("%s @@@ $2", field))
		if fuzzyDistance > 0 {
			parts = append(parts,
				fmt.Sprintf("id @@@ paradedb.match('%s', $2, distance => %d)", field, fuzzyDistance))
		}
	}

	sql := fmt.Sprintf(`
		SELECT %s, paradedb.score(id) AS score
		FROM %s
		WHERE elderly_id = $1 AND embedding IS NOT NULL AND (%s)
		ORDER BY score DESC, id ASC
		LIMIT %d`,
		spec.columns, spec.table, strings.Join(parts, " OR "), topK)

	rows, err := db.pool.Query(ctx, sql, elderlyID, query)
	if err != nil {
		return nil, fmt.Errorf("storage: lexical search %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, score, err := spec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan lexical %s: %w", bucket, err)
		}
		c.BM25Score = score
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: lexical search %s: %w", bucket, err)
	}
	return out, nil
}

// InsertShortTerm appends a short-term memory. The embedding may be nil
// when the embedding backend was unavailable; the row is still written so
// the statement is not lost, and a later backfill can embed it.
func (db *DB) InsertShortTerm(ctx context.Context, elderlyID uuid.UUID, content string, embedding *pgvector.Vector) (uuid.UUID, time.Time, error) {
	if strings.TrimSpace(content) == "" {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: empty content", model.ErrValidation)
	}
	if elderlyID == uuid.Nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: elderly_id is required", model.ErrValidation)
	}

	var id uuid.UUID
	var createdAt time.Time
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.pool.QueryRow(ctx, `
			INSERT INTO short_term_memory (elderly_id, content, embedding)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			elderlyID, content, embedding,
		).Scan(&id, &createdAt)
	})
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("storage: insert short-term: %w", err)
	}
	return id, createdAt, nil
}

// InsertLongTerm writes a long-term memory fact. Used by caregiver tooling;
// the conversational graphs only ever write short-term memories.
func (db *DB) InsertLongTerm(ctx context.Context, elderlyID uuid.UUID, category model.LTMCategory, key, value string, embedding *pgvector.Vector) (uuid.UUID, time.Time, error) {
	if elderlyID == uuid.Nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: elderly_id is required", model.ErrValidation)
	}
	if !category.Valid() {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: unknown category %q", model.ErrValidation, category)
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: key and value are required", model.ErrValidation)
	}

	var id uuid.UUID
	var lastUpdated time.Time
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.pool.QueryRow(ctx, `
			INSERT INTO long_term_memory (elderly_id, category, key, value, embedding)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, last_updated`,
			elderlyID, string(category), key, value, embedding,
		).Scan(&id, &lastUpdated)
	})
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("storage: insert long-term: %w", err)
	}
	return id, lastUpdated, nil
}

// InsertHealthcare writes a healthcare record. Used by caregiver tooling.
func (db *DB) InsertHealthcare(ctx context.Context, elderlyID uuid.UUID, recordType model.RecordType, description string, diagnosisDate *time.Time, embedding *pgvector.Vector) (uuid.UUID, time.Time, error) {
	if elderlyID == uuid.Nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: elderly_id is required", model.ErrValidation)
	}
	if !recordType.Valid() {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: unknown record type %q", model.ErrValidation, recordType)
	}
	if strings.TrimSpace(description) == "" {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: description is required", model.ErrValidation)
	}

	var id uuid.UUID
	var lastUpdated time.Time
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.pool.QueryRow(ctx, `
			INSERT INTO healthcare_records (elderly_id, record_type, description, diagnosis_date, embedding)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, last_updated`,
			elderlyID, string(recordType), description, diagnosisDate, embedding,
		).Scan(&id, &lastUpdated)
	})
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("storage: insert healthcare: %w", err)
	}
	return id, lastUpdated, nil
}
