// Package persistence stores annotations, bookmarks and workspace state
// locally in SQLite and synchronizes annotations with the remote
// annotation service.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/persistence/migrations"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// LocalStore is a key/value store partitioned by document.
type LocalStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenLocal opens (and migrates) the SQLite database at path.
func OpenLocal(path string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &LocalStore{db: db, path: path, logger: logger}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.path
}

func (s *LocalStore) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the raw value stored under key. The second result is false
// when the key is absent.
func (s *LocalStore) Get(ctx context.Context, document, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE document = ? AND key = ?", document, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s/%s: %w", document, key, err)
	}
	return []byte(value), true, nil
}

// Put stores a raw value under key.
func (s *LocalStore) Put(ctx context.Context, document, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (document, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, document, key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", document, key, err)
	}
	return nil
}

// Delete removes a key.
func (s *LocalStore) Delete(ctx context.Context, document, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE document = ? AND key = ?", document, key); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", document, key, err)
	}
	return nil
}

// Keys lists the keys stored for a document in lexical order.
func (s *LocalStore) Keys(ctx context.Context, document string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv WHERE document = ? ORDER BY key", document)
	if err != nil {
		return nil, fmt.Errorf("listing keys of %s: %w", document, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Documents lists the documents that have stored data.
func (s *LocalStore) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT document FROM kv ORDER BY document")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Document returns the store scoped to one document.
func (s *LocalStore) Document(id string) *DocumentStore {
	return &DocumentStore{store: s, id: id}
}

// DocumentStore persists one document's annotations, bookmarks and
// workspace. Malformed stored data is treated as empty.
type DocumentStore struct {
	store *LocalStore
	id    string
}

var (
	_ annotation.PagePersister = (*DocumentStore)(nil)
	_ workspace.Persister      = (*DocumentStore)(nil)
	_ BookmarkPersister        = (*DocumentStore)(nil)
)

// ID returns the document id.
func (d *DocumentStore) ID() string { return d.id }

// loadJSON decodes key into v. Absent keys leave v untouched; malformed
// values are logged and leave v untouched.
func (d *DocumentStore) loadJSON(ctx context.Context, key string, v any) error {
	raw, ok, err := d.store.Get(ctx, d.id, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		d.store.logger.Warn("discarding malformed stored value",
			"document", d.id, "key", key, "error", err)
	}
	return nil
}

func (d *DocumentStore) saveJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return d.store.Put(ctx, d.id, key, raw)
}

// LoadPage returns a page's committed annotations and pending highlights.
func (d *DocumentStore) LoadPage(ctx context.Context, page int) ([]annotation.Annotation, []annotation.Highlight, error) {
	var anns []annotation.Annotation
	var pending []annotation.Highlight
	if err := d.loadJSON(ctx, AnnotationsKey(page), &anns); err != nil {
		return nil, nil, err
	}
	if err := d.loadJSON(ctx, PendingKey(page), &pending); err != nil {
		return nil, nil, err
	}
	return validAnnotations(anns, page), validHighlights(pending), nil
}

// SavePage stores a page's committed annotations and pending highlights.
func (d *DocumentStore) SavePage(page int, anns []annotation.Annotation, pending []annotation.Highlight) error {
	ctx := context.Background()
	if anns == nil {
		anns = []annotation.Annotation{}
	}
	if pending == nil {
		pending = []annotation.Highlight{}
	}
	if err := d.saveJSON(ctx, AnnotationsKey(page), anns); err != nil {
		return err
	}
	return d.saveJSON(ctx, PendingKey(page), pending)
}

// Pages lists the pages with stored annotation data.
func (d *DocumentStore) Pages(ctx context.Context) ([]int, error) {
	keys, err := d.store.Keys(ctx, d.id)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var pages []int
	for _, k := range keys {
		if p, ok := pageFromKey(k); ok && !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// LoadWorkspace returns the stored workspace state.
func (d *DocumentStore) LoadWorkspace(ctx context.Context) (workspace.State, error) {
	var st workspace.State
	if err := d.loadJSON(ctx, WorkspaceKey, &st); err != nil {
		return workspace.State{}, err
	}
	return st, nil
}

// SaveWorkspace stores the workspace state.
func (d *DocumentStore) SaveWorkspace(st workspace.State) error {
	return d.saveJSON(context.Background(), WorkspaceKey, st)
}

// LoadBookmarks returns the stored bookmarks.
func (d *DocumentStore) LoadBookmarks(ctx context.Context) ([]Bookmark, error) {
	var bms []Bookmark
	if err := d.loadJSON(ctx, BookmarksKey, &bms); err != nil {
		return nil, err
	}
	return bms, nil
}

// SaveBookmarks stores the bookmarks.
func (d *DocumentStore) SaveBookmarks(bms []Bookmark) error {
	if bms == nil {
		bms = []Bookmark{}
	}
	return d.saveJSON(context.Background(), BookmarksKey, bms)
}

// validAnnotations drops entries whose geometry does not decode to a valid
// shape and pins the page number to the storage key.
func validAnnotations(anns []annotation.Annotation, page int) []annotation.Annotation {
	out := make([]annotation.Annotation, 0, len(anns))
	for _, a := range anns {
		if a.ID == "" || a.Type == "" {
			continue
		}
		if a.Shape != nil && a.Shape.Validate() != nil {
			continue
		}
		if a.Type == annotation.TypeGroup {
			a.Highlights = validHighlights(a.Highlights)
			if len(a.Highlights) == 0 {
				continue
			}
		}
		a.PageNumber = page
		out = append(out, a)
	}
	return out
}

func validHighlights(hs []annotation.Highlight) []annotation.Highlight {
	out := make([]annotation.Highlight, 0, len(hs))
	for _, h := range hs {
		if h.Shape.Validate() == nil {
			out = append(out, h)
		}
	}
	return out
}
