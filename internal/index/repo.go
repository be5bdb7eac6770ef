package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/monologue/internal/apperr"
)

// EntryRow represents a row in the entries table. Path is the archive file name.
type EntryRow struct {
	Path         string            `json:"path"`
	Date         string            `json:"date"`
	Title        string            `json:"title"`
	Subject      string            `json:"subject"`
	ContentID    string            `json:"content_id,omitempty"`
	RemoteIDs    map[string]string `json:"remote_ids,omitempty"`
	Checksum     string            `json:"checksum"`
	LastModified time.Time         `json:"last_modified"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// PublishRow is one logged publish attempt.
type PublishRow struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Subject   string    `json:"subject"`
	Target    string    `json:"target"`
	Status    string    `json:"status"`
	RemoteID  string    `json:"remote_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	DryRun    bool      `json:"dry_run"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertEntry inserts or replaces an entry and its FTS row within a transaction.
func (db *DB) UpsertEntry(row EntryRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	ids, _ := json.Marshal(row.RemoteIDs)
	if row.RemoteIDs == nil {
		ids = []byte("{}")
	}

	_, err = tx.Exec(`
		INSERT INTO entries (path, date, title, subject, content_id, remote_ids, checksum, body, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			date          = excluded.date,
			title         = excluded.title,
			subject       = excluded.subject,
			content_id    = excluded.content_id,
			remote_ids    = excluded.remote_ids,
			checksum      = excluded.checksum,
			body          = excluded.body,
			last_modified = excluded.last_modified
	`, row.Path, row.Date, row.Title, row.Subject, row.ContentID, string(ids), row.Checksum, body, row.LastModified.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert entry: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Path, row.Subject, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteEntry removes an entry and its FTS row.
func (db *DB) DeleteEntry(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM entries WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete entry: %w", err)
	}
	return tx.Commit()
}

const entryColumns = `path, date, title, subject, content_id, remote_ids, checksum, last_modified`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (EntryRow, error) {
	var (
		r   EntryRow
		ids string
	)
	if err := s.Scan(&r.Path, &r.Date, &r.Title, &r.Subject, &r.ContentID, &ids, &r.Checksum, &r.LastModified); err != nil {
		return EntryRow{}, err
	}
	_ = json.Unmarshal([]byte(ids), &r.RemoteIDs)
	return r, nil
}

// GetEntry returns the indexed entry for an archive file name.
func (db *DB) GetEntry(path string) (*EntryRow, error) {
	r, err := scanEntry(db.conn.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get entry: %w", err)
	}
	return &r, nil
}

// ListEntries returns entries newest date first, and the total count.
func (db *DB) ListEntries(limit, offset int) ([]EntryRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entries`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count entries: %w", err)
	}
	rows, err := db.conn.Query(`SELECT `+entryColumns+` FROM entries ORDER BY date DESC, path DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list entries: %w", err)
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		r, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// GetChecksum returns the stored checksum for an entry, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM entries WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path -> checksum for every indexed entry.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// RecordPublish appends a publish attempt to the history log.
func (db *DB) RecordPublish(p PublishRow) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO publishes (date, subject, target, status, remote_id, detail, dry_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Date, p.Subject, p.Target, p.Status, p.RemoteID, p.Detail, p.DryRun, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: record publish: %w", err)
	}
	return nil
}

// History returns publish attempts, newest first. An empty date returns all.
func (db *DB) History(date string, limit int) ([]PublishRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`
		SELECT id, date, subject, target, status, remote_id, detail, dry_run, created_at
		FROM publishes
		WHERE ? = '' OR date = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, date, date, limit)
	if err != nil {
		return nil, fmt.Errorf("index: history: %w", err)
	}
	defer rows.Close()

	var out []PublishRow
	for rows.Next() {
		var p PublishRow
		if err := rows.Scan(&p.ID, &p.Date, &p.Subject, &p.Target, &p.Status, &p.RemoteID, &p.Detail, &p.DryRun, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
