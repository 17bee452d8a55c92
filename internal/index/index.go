// Package index provides retrieval over guidelines chunks.
//
// Chunks and their embeddings persist in SQLite. The index builds lazily on
// first search and rebuilds when the document fingerprint changes, so a
// stale database never serves chunks from an older guidelines revision.
// With no embedder configured, search falls back to lexical term-overlap
// scoring and stays usable without gateway access.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index/migrations"
	"github.com/reviewforge/reviewforge/internal/platform/id"
	sqlitemigrate "github.com/reviewforge/reviewforge/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// DefaultTopK matches the retriever's default result count.
const DefaultTopK = 4

const fingerprintKey = "document_fingerprint"

// Embedder turns texts into vectors. A nil Embedder switches the index to
// lexical scoring.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Match is one search result.
type Match struct {
	Chunk guidelines.Chunk
	Score float64
}

// Index is a SQLite-backed retrieval index over a guidelines document.
type Index struct {
	sqlDB    *sql.DB
	doc      *guidelines.Document
	embedder Embedder

	mu    sync.Mutex
	ready bool
}

// Open opens (or creates) the index database at path. Pass ":memory:" for
// an ephemeral index.
func Open(path string, doc *guidelines.Document, embedder Embedder) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if doc == nil {
		return nil, fmt.Errorf("guidelines document is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Index{sqlDB: sqlDB, doc: doc, embedder: embedder}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	if ix == nil || ix.sqlDB == nil {
		return nil
	}
	return ix.sqlDB.Close()
}

// Search returns the topK chunks most relevant to query, optionally
// restricted to one section. The index builds on first use.
func (ix *Index) Search(ctx context.Context, query string, topK int, section string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if err := ix.ensureBuilt(ctx); err != nil {
		return nil, err
	}

	rows, err := ix.loadChunks(ctx, section)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var matches []Match
	if ix.embedder != nil {
		matches, err = ix.rankByEmbedding(ctx, query, rows)
		if err != nil {
			return nil, err
		}
	} else {
		matches = rankByTerms(query, rows)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// ChunkCount reports how many chunks are indexed, building first if needed.
func (ix *Index) ChunkCount(ctx context.Context) (int, error) {
	if err := ix.ensureBuilt(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := ix.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// ensureBuilt populates the chunk table once per process, rebuilding when
// the stored fingerprint no longer matches the document.
func (ix *Index) ensureBuilt(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ready {
		return nil
	}

	fingerprint := ix.doc.Fingerprint()

	var stored string
	err := ix.sqlDB.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", fingerprintKey).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read index fingerprint: %w", err)
	}
	if stored == fingerprint {
		ix.ready = true
		return nil
	}

	if err := ix.rebuild(ctx, fingerprint); err != nil {
		return err
	}
	ix.ready = true
	return nil
}

func (ix *Index) rebuild(ctx context.Context, fingerprint string) error {
	chunks := ix.doc.Chunks

	var vectors [][]float32
	if ix.embedder != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunkText(chunk)
		}
		embedded, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(embedded) != len(chunks) {
			return fmt.Errorf("expected %d chunk embeddings, got %d", len(chunks), len(embedded))
		}
		vectors = embedded
	}

	tx, err := ix.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	for i, chunk := range chunks {
		chunkID, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate chunk id: %w", err)
		}
		headingPath, err := json.Marshal(chunk.HeadingPath)
		if err != nil {
			return fmt.Errorf("marshal heading path: %w", err)
		}
		var embedding any
		if vectors != nil {
			encoded, err := json.Marshal(vectors[i])
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
			embedding = string(encoded)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks (id, position, section, heading_path, body, embedding) VALUES (?, ?, ?, ?, ?, ?)",
			chunkID, i, chunk.Section, string(headingPath), chunk.Body, embedding,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO index_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		fingerprintKey, fingerprint,
	); err != nil {
		return fmt.Errorf("record fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index rebuild: %w", err)
	}
	return nil
}

type chunkRow struct {
	chunk     guidelines.Chunk
	embedding []float32
}

func (ix *Index) loadChunks(ctx context.Context, section string) ([]chunkRow, error) {
	query := "SELECT section, heading_path, body, embedding FROM chunks ORDER BY position"
	args := []any{}
	if strings.TrimSpace(section) != "" {
		query = "SELECT section, heading_path, body, embedding FROM chunks WHERE section = ? COLLATE NOCASE ORDER BY position"
		args = append(args, strings.TrimSpace(section))
	}

	rows, err := ix.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var result []chunkRow
	for rows.Next() {
		var (
			row         chunkRow
			headingPath string
			embedding   sql.NullString
		)
		if err := rows.Scan(&row.chunk.Section, &headingPath, &row.chunk.Body, &embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(headingPath), &row.chunk.HeadingPath); err != nil {
			return nil, fmt.Errorf("unmarshal heading path: %w", err)
		}
		if embedding.Valid {
			if err := json.Unmarshal([]byte(embedding.String), &row.embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding: %w", err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return result, nil
}

func (ix *Index) rankByEmbedding(ctx context.Context, query string, rows []chunkRow) ([]Match, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected a single query embedding, got %d", len(vectors))
	}
	queryVector := vectors[0]

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, Match{
			Chunk: row.chunk,
			Score: cosineSimilarity(queryVector, row.embedding),
		})
	}
	return matches, nil
}

// rankByTerms scores chunks by the share of query terms present in the
// chunk text, with heading hits weighted the same as body hits.
func rankByTerms(query string, rows []chunkRow) []Match {
	terms := tokenize(query)
	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		text := strings.ToLower(chunkText(row.chunk))
		var hit int
		for term := range terms {
			if strings.Contains(text, term) {
				hit++
			}
		}
		var score float64
		if len(terms) > 0 {
			score = float64(hit) / float64(len(terms))
		}
		matches = append(matches, Match{Chunk: row.chunk, Score: score})
	}
	return matches
}

func tokenize(value string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(value)) {
		field = strings.Trim(field, ".,;:!?()[]\"'")
		if len(field) < 2 {
			continue
		}
		terms[field] = struct{}{}
	}
	return terms
}

// chunkText is the text handed to the embedder: heading path then body, so
// section names participate in similarity.
func chunkText(chunk guidelines.Chunk) string {
	if len(chunk.HeadingPath) == 0 {
		return chunk.Body
	}
	return strings.Join(chunk.HeadingPath, " > ") + "\n" + chunk.Body
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
