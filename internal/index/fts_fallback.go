//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string, _ bool) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsClear(_ *sql.Tx) error { return nil }

// Search performs a LIKE-based search over authored notes.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, fname, title, substr(body, 1, 200)
		FROM notes
		WHERE stub = 0 AND (title LIKE ? OR body LIKE ? OR fname LIKE ?)
		ORDER BY fname
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Fname, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
