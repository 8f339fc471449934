package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/migrations"
)

// ErrCatalogURLRequired is returned when the catalog sink is built without a
// connection string.
var ErrCatalogURLRequired = errors.New("catalog database URL is required")

const upsertDocument = `
INSERT INTO documents (doc_id, source, uri, content, metadata, raw, content_hash, ingested_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (doc_id) DO UPDATE SET
    source       = EXCLUDED.source,
    uri          = EXCLUDED.uri,
    content      = EXCLUDED.content,
    metadata     = EXCLUDED.metadata,
    raw          = EXCLUDED.raw,
    content_hash = EXCLUDED.content_hash,
    ingested_at  = EXCLUDED.ingested_at,
    updated_at   = now()
WHERE documents.content_hash IS DISTINCT FROM EXCLUDED.content_hash`

// Catalog persists documents into the PostgreSQL document catalog. Writes are
// idempotent upserts keyed by doc_id; a re-ingested document with an
// unchanged content hash is a no-op.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCatalog connects to the catalog database. Pool sizing honors
// CATALOG_MAX_OPEN_CONNS and CATALOG_MAX_IDLE_CONNS.
func NewCatalog(ctx context.Context, databaseURL string, logger *slog.Logger) (*Catalog, error) {
	if databaseURL == "" {
		return nil, ErrCatalogURLRequired
	}

	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	db.SetMaxOpenConns(config.GetEnvInt("CATALOG_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(config.GetEnvInt("CATALOG_MAX_IDLE_CONNS", 5))
	db.SetConnMaxLifetime(config.GetEnvDuration("CATALOG_CONN_MAX_LIFETIME", 30*time.Minute))

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	logger.Info("Connected to document catalog",
		slog.String("database_url", migrations.MaskDatabaseURL(databaseURL)))

	return &Catalog{db: db, logger: logger}, nil
}

// WriteDocument implements Sink.
func (c *Catalog) WriteDocument(ctx context.Context, doc *ingestion.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", doc.DocID, err)
	}

	raw, err := json.Marshal(doc.Raw)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", doc.DocID, err)
	}

	contentHash, _ := doc.Metadata[ingestion.MetadataContentHash].(string)

	ingestedAt := time.Now().UTC()
	if stamp, ok := doc.Metadata[ingestion.MetadataIngestedAt].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			ingestedAt = parsed
		}
	}

	result, err := c.db.ExecContext(ctx, upsertDocument,
		doc.DocID, doc.Source, doc.URI, doc.Content, metadata, raw, contentHash, ingestedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.DocID, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		c.logger.Debug("Document unchanged, skipping catalog write",
			slog.String("doc_id", doc.DocID),
			slog.String("content_hash", contentHash))
	}

	return nil
}

// Close implements Sink.
func (c *Catalog) Close() error {
	return c.db.Close()
}
