//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			path UNINDEXED,
			subject,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, subject, body string) error {
	_, _ = tx.Exec(`DELETE FROM entries_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO entries_fts (path, subject, body) VALUES (?, ?, ?)`, path, subject, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM entries_fts WHERE path = ?`, path)
}

// Search performs an FTS5 full-text search and returns matching entries with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.path,
		       e.date,
		       f.subject,
		       snippet(entries_fts, 2, '**', '**', '...', 24)
		FROM entries_fts f
		JOIN entries e ON e.path = f.path
		WHERE entries_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Date, &r.Subject, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
