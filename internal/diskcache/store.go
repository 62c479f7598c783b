package diskcache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alpinemaps/tilescheduler/internal/scheduler"
	"github.com/alpinemaps/tilescheduler/internal/tileid"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store persists a directory of per-quad files plus a SQLite index row per
// quad (spec.md §4.9's "plus an index file listing known quads"), grounded
// on internal/mbtiles.Writer/Reader's pragma setup and batched-transaction
// style. The index only ever mirrors what the per-quad files already say;
// losing it is not fatal, since ReadAll rebuilds a cache straight from the
// directory listing and never consults the index.
type Store struct {
	dir    string
	db     *sql.DB
	logger *slog.Logger
}

// Open creates dir if needed and opens (or creates) its index database.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskcache: create dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("diskcache: open index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("diskcache: pragma %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS quads (
			zoom INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			scheme INTEGER NOT NULL,
			status INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (zoom, x, y, scheme)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("diskcache: create schema: %w", err)
	}

	return &Store{dir: dir, db: db, logger: logger}, nil
}

// Close closes the index database. It does not touch the per-quad files.
func (s *Store) Close() error {
	return s.db.Close()
}

// fileName is the on-disk name for one quad's payload file, keyed by the
// quad's parent id so a directory listing alone identifies every quad.
func fileName(id tileid.ID) string {
	return id.String() + ".quad"
}

// WriteAll persists quads to dir, overwriting any existing file per quad
// (spec.md §4.9 "disk cache... File format per quad file"). Persistence is
// best-effort per spec.md §7: a single quad's write failure is logged and
// skipped rather than aborting the whole batch, and the method itself never
// returns an error to its caller — the embedding Scheduler.PersistTiles
// treats disk persistence as fire-and-forget.
func (s *Store) WriteAll(quads []scheduler.TileQuad) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn("diskcache: begin index tx failed", slog.Any("error", err))
		tx = nil
	}

	for _, q := range quads {
		path := filepath.Join(s.dir, fileName(q.ID))
		if err := os.WriteFile(path, EncodeQuad(q), 0o644); err != nil {
			s.logger.Warn("diskcache: write quad failed",
				slog.String("tile", q.ID.String()), slog.Any("error", err))
			continue
		}
		if tx == nil {
			continue
		}
		info := q.NetworkInfo()
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO quads (zoom, x, y, scheme, status, timestamp_ms, path)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.ID.Zoom, q.ID.X, q.ID.Y, int(q.ID.Scheme), int(info.Status), info.TimestampMs, fileName(q.ID),
		)
		if err != nil {
			s.logger.Warn("diskcache: index upsert failed",
				slog.String("tile", q.ID.String()), slog.Any("error", err))
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			s.logger.Warn("diskcache: commit index tx failed", slog.Any("error", err))
		}
	}
}

// ReadAll loads every quad file in dir. A truncated or version-mismatched
// file is dropped and logged at debug level; the rest of the directory is
// still read (spec.md §4.9 "Reading is tolerant"). The index is never
// consulted here — ReadAll walks the directory directly so a lost or
// corrupt index never prevents a successful read.
func (s *Store) ReadAll() []scheduler.TileQuad {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("diskcache: read dir failed", slog.String("dir", s.dir), slog.Any("error", err))
		return nil
	}

	var out []scheduler.TileQuad
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".quad" {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug("diskcache: read file failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		q, err := DecodeQuad(data)
		if err != nil {
			s.logger.Debug("diskcache: dropping corrupt quad file",
				slog.String("path", path), slog.Any("error", err))
			continue
		}
		out = append(out, q)
	}
	return out
}
