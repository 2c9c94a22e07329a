package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record doesn't exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	mod_time   INTEGER NOT NULL,
	language   TEXT NOT NULL DEFAULT '',
	indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	chunk_type TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	language   TEXT NOT NULL DEFAULT '',
	branch     TEXT NOT NULL DEFAULT '',
	file_hash  TEXT NOT NULL,
	indexed_at INTEGER NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// MetadataStore persists file and chunk records in SQLite.
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore opens the SQLite database at dbPath, creating the
// schema if needed. Use ":memory:" for an in-memory store in tests.
func NewMetadataStore(dbPath string) (*MetadataStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for concurrent readers, single writer connection.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MetadataStore{db: db}, nil
}

// Close closes the database connection.
func (m *MetadataStore) Close() error {
	return m.db.Close()
}

// GetFileHash returns the recorded content hash for a path, or
// ErrNotFound when the path was never indexed.
func (m *MetadataStore) GetFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := m.db.QueryRowContext(ctx, `SELECT hash FROM files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query file hash: %w", err)
	}
	return hash, nil
}

// ListFilePaths returns every indexed file path.
func (m *MetadataStore) ListFilePaths(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ChunkIDsByPath returns the IDs of all chunks belonging to a path.
func (m *MetadataStore) ChunkIDsByPath(ctx context.Context, path string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceFile atomically replaces a file record and all of its chunks
// in a single transaction. Deleting the file row cascades to the old
// chunks, so no intermediate state is ever visible to readers.
func (m *MetadataStore) ReplaceFile(ctx context.Context, file *FileRecord, chunks []*Chunk) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, file.Path); err != nil {
		return fmt.Errorf("failed to delete old file record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (path, hash, size, mod_time, language, indexed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		file.Path, file.Hash, file.Size, file.ModTime.Unix(), file.Language, file.IndexedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, path, content, start_line, end_line, chunk_type, name, language, branch, file_hash, indexed_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %s: %w", c.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			c.ID, c.Path, c.Content, c.StartLine, c.EndLine, c.ChunkType,
			c.Name, c.Language, c.Branch, c.FileHash, c.IndexedAt.Unix(), meta)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeletePaths removes file records and their chunks for the given
// paths. Missing paths are ignored.
func (m *MetadataStore) DeletePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, path, content, start_line, end_line, chunk_type, name, language, branch, file_hash, indexed_at, metadata`

// GetChunks returns chunks for the given IDs. Missing IDs are skipped;
// results preserve the requested order.
func (m *MetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM chunks WHERE id IN (%s)`, chunkColumns, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// GetChunksByPath returns all chunks of a file ordered by start line.
func (m *MetadataStore) GetChunksByPath(ctx context.Context, path string) ([]*Chunk, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM chunks WHERE path = ? ORDER BY start_line`, chunkColumns), path)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by path: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Stats summarizes the index contents.
func (m *MetadataStore) Stats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{Languages: make(map[string]int)}

	var lastIndexed sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(indexed_at) FROM files`).
		Scan(&stats.TotalFiles, &stats.TotalSizeBytes, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to query file stats: %w", err)
	}
	if lastIndexed.Valid {
		stats.LastIndexed = time.Unix(lastIndexed.Int64, 0)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT language, COUNT(*) FROM chunks GROUP BY language`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var lang string
		var count int
		if err := rows.Scan(&lang, &count); err != nil {
			return nil, err
		}
		stats.Languages[lang] = count
		stats.TotalChunks += count
	}
	return stats, rows.Err()
}

// GetMeta reads a meta value, returning ErrNotFound for unknown keys.
func (m *MetadataStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query meta: %w", err)
	}
	return value, nil
}

// SetMeta writes a meta key-value pair.
func (m *MetadataStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func scanChunk(rows *sql.Rows) (*Chunk, error) {
	var c Chunk
	var indexedAt int64
	var meta string

	err := rows.Scan(&c.ID, &c.Path, &c.Content, &c.StartLine, &c.EndLine,
		&c.ChunkType, &c.Name, &c.Language, &c.Branch, &c.FileHash, &indexedAt, &meta)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}

	c.IndexedAt = time.Unix(indexedAt, 0)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", c.ID, err)
		}
	}
	return &c, nil
}
