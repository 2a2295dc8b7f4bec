// Package website provides the SQLite-backed website store used for keyword
// search and as the source of truth for background indexing.
package website

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/seamark-nav/seamark/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id    INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	icon  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS websites (
	id            INTEGER PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL,
	icon          TEXT NOT NULL DEFAULT '',
	category_id   INTEGER REFERENCES categories(id),
	views         INTEGER NOT NULL DEFAULT 0,
	is_private    INTEGER NOT NULL DEFAULT 0,
	created_by_id INTEGER NOT NULL DEFAULT 0,
	visible_to    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_websites_category ON websites(category_id);
`

// Repo is a SQLite website repository.
type Repo struct {
	db *sql.DB
}

// Open opens (and if needed creates) the website database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("website store: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("website store: open: %w", err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("website store: migrate: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close closes the underlying database.
func (r *Repo) Close() error { return r.db.Close() }

const selectColumns = `
	w.id, w.title, w.description, w.url, w.icon,
	COALESCE(w.category_id, 0), COALESCE(c.title, ''), COALESCE(c.icon, ''),
	w.views, w.is_private, w.created_by_id, w.visible_to
`

// visibilityClause returns the SQL predicate restricting rows to what the
// viewer may see. Anonymous viewers get public entries only; admins see
// everything; a signed-in user additionally sees their own private entries
// and private entries shared with them.
func visibilityClause(viewer domain.Viewer, args *[]any) string {
	switch {
	case viewer.IsAdmin:
		return "1=1"
	case viewer.Anonymous():
		return "w.is_private = 0"
	default:
		*args = append(*args, viewer.ID, ","+strconv.FormatInt(viewer.ID, 10)+",")
		return "(w.is_private = 0 OR w.created_by_id = ? OR instr(',' || w.visible_to || ',', ?) > 0)"
	}
}

// Search returns websites whose title, description or URL contains the term,
// case-insensitively, filtered by viewer visibility. Results come back in
// store order (ascending id). An empty term matches nothing.
func (r *Repo) Search(ctx context.Context, term string, viewer domain.Viewer, limit int) ([]domain.Website, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}

	pattern := "%" + strings.ToLower(term) + "%"
	args := []any{pattern, pattern, pattern}
	visibility := visibilityClause(viewer, &args)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM websites w LEFT JOIN categories c ON c.id = w.category_id
		WHERE (instr(lower(w.title), ?) > 0
			OR instr(lower(w.description), ?) > 0
			OR instr(lower(w.url), ?) > 0)
		  AND %s
		ORDER BY w.id
		LIMIT ?`, selectColumns, visibility)

	return r.query(ctx, query, args...)
}

// ByIDs returns the visible subset of the given websites, preserving the
// order of ids. Unknown and invisible ids are silently dropped.
func (r *Repo) ByIDs(ctx context.Context, ids []int64, viewer domain.Viewer) ([]domain.Website, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	visibility := visibilityClause(viewer, &args)

	query := fmt.Sprintf(`
		SELECT %s
		FROM websites w LEFT JOIN categories c ON c.id = w.category_id
		WHERE w.id IN (%s) AND %s`,
		selectColumns, strings.Join(placeholders, ","), visibility)

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Website, len(rows))
	for _, w := range rows {
		byID[w.ID] = w
	}
	ordered := make([]domain.Website, 0, len(rows))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			ordered = append(ordered, w)
		}
	}
	return ordered, nil
}

// All returns every website in store order, regardless of visibility.
// Used by background indexing, which runs with admin scope.
func (r *Repo) All(ctx context.Context) ([]domain.Website, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM websites w LEFT JOIN categories c ON c.id = w.category_id
		ORDER BY w.id`, selectColumns)
	return r.query(ctx, query)
}

// Categories returns all categories ordered by id.
func (r *Repo) Categories(ctx context.Context) ([]domain.CategoryView, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, icon FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("website store: categories: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryView
	for rows.Next() {
		var c domain.CategoryView
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon); err != nil {
			return nil, fmt.Errorf("website store: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) query(ctx context.Context, query string, args ...any) ([]domain.Website, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("website store: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Website
	for rows.Next() {
		var w domain.Website
		var isPrivate int
		err := rows.Scan(
			&w.ID, &w.Title, &w.Description, &w.URL, &w.Icon,
			&w.CategoryID, &w.Category, &w.CategoryIcon,
			&w.Views, &isPrivate, &w.CreatedByID, &w.VisibleTo,
		)
		if err != nil {
			return nil, fmt.Errorf("website store: scan: %w", err)
		}
		w.IsPrivate = isPrivate != 0
		out = append(out, w)
	}
	return out, rows.Err()
}
