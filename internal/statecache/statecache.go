// Package statecache persists the last fetched file listing and an
// upload journal in an embedded SQLite database, so the CLI can show
// cached results offline and keep a local history of transfers.
package statecache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/datadodo/datagate/internal/files"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit

// HistoryEntry is one row of the upload journal.
type HistoryEntry struct {
	FileName   string
	FileSize   int64
	Outcome    string
	RecordedAt time.Time
}

// Cache is the SQLite-backed local state store. It implements
// files.Recorder so synchronizer outcomes flow into it without the
// synchronizers knowing about persistence.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger

	stmtInsertListing *sql.Stmt
	stmtInsertUpload  *sql.Stmt
	stmtListHistory   *sql.Stmt
}

// Open creates the cache at dbPath, applying migrations and preparing
// statements. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statecache: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db, logger: logger}
	if err := c.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("statecache: prepare statements: %w", err)
	}

	logger.Debug("state cache ready", slog.String("path", dbPath))

	return c, nil
}

// Close releases prepared statements and the database handle.
func (c *Cache) Close() error {
	for _, stmt := range []*sql.Stmt{c.stmtInsertListing, c.stmtInsertUpload, c.stmtListHistory} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return c.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("statecache: set pragma %q: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations using the goose
// v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("statecache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("statecache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("statecache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (c *Cache) prepareStatements(ctx context.Context) error {
	var err error

	c.stmtInsertListing, err = c.db.PrepareContext(ctx,
		`INSERT INTO listing (id, file_name, file_size, content_type, owner_uid, uploaded_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	c.stmtInsertUpload, err = c.db.PrepareContext(ctx,
		`INSERT INTO upload_history (file_name, file_size, outcome, recorded_at)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	c.stmtListHistory, err = c.db.PrepareContext(ctx,
		`SELECT file_name, file_size, outcome, recorded_at
		 FROM upload_history ORDER BY seq DESC LIMIT ?`)

	return err
}

// RecordListing replaces the cached listing with items. The swap is
// transactional so readers never observe a half-written listing.
func (c *Cache) RecordListing(ctx context.Context, items []files.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statecache: begin listing tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM listing"); err != nil {
		tx.Rollback()
		return fmt.Errorf("statecache: clearing listing: %w", err)
	}

	fetchedAt := time.Now().UTC().Format(time.RFC3339)

	for _, item := range items {
		_, err := tx.StmtContext(ctx, c.stmtInsertListing).ExecContext(ctx,
			item.ID, item.FileName, item.FileSize, item.ContentType,
			item.OwnerUID, item.UploadedAt.UTC().Format(time.RFC3339), fetchedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("statecache: inserting listing row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statecache: commit listing: %w", err)
	}

	return nil
}

// RecordUpload appends one row to the upload journal.
func (c *Cache) RecordUpload(ctx context.Context, name string, size int64, outcome string) error {
	_, err := c.stmtInsertUpload.ExecContext(ctx,
		name, size, outcome, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("statecache: recording upload: %w", err)
	}

	return nil
}

// Listing returns the cached listing in filename order.
func (c *Cache) Listing(ctx context.Context) ([]files.Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, file_name, file_size, content_type, owner_uid, uploaded_at
		 FROM listing ORDER BY file_name`)
	if err != nil {
		return nil, fmt.Errorf("statecache: querying listing: %w", err)
	}
	defer rows.Close()

	var out []files.Record

	for rows.Next() {
		var (
			rec        files.Record
			uploadedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.FileSize, &rec.ContentType, &rec.OwnerUID, &uploadedAt); err != nil {
			return nil, fmt.Errorf("statecache: scanning listing row: %w", err)
		}

		if ts, err := time.Parse(time.RFC3339, uploadedAt); err == nil {
			rec.UploadedAt = ts
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}

// History returns up to limit journal entries, newest first.
func (c *Cache) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := c.stmtListHistory.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("statecache: querying history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry

	for rows.Next() {
		var (
			entry      HistoryEntry
			recordedAt string
		)
		if err := rows.Scan(&entry.FileName, &entry.FileSize, &entry.Outcome, &recordedAt); err != nil {
			return nil, fmt.Errorf("statecache: scanning history row: %w", err)
		}

		if ts, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			entry.RecordedAt = ts
		}

		out = append(out, entry)
	}

	return out, rows.Err()
}
