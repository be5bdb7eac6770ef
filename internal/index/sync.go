package index

import (
	"log/slog"

	"github.com/starford/monologue/internal/checksum"
	"github.com/starford/monologue/internal/parser"
	"github.com/starford/monologue/internal/storage"
)

// Sync walks the archive and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Name] = struct{}{}

		data, err := store.Read(f.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Name), slog.String("error", err.Error()))
			continue
		}
		if checksums[f.Name] == checksum.Sum(data) {
			continue
		}
		if err := indexFile(db, f.Name, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Name), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", f.Name))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteEntry(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}
	return nil
}

// indexFile parses an archive file and upserts it into the DB.
func indexFile(db *DB, name string, data []byte) error {
	e, err := parser.Parse(data, parser.WithSource(name))
	if err != nil {
		return err
	}
	row := EntryRow{
		Path:         name,
		Date:         e.DateKey(),
		Title:        e.Title,
		Subject:      e.Subject(),
		ContentID:    e.ContentID(),
		RemoteIDs:    e.RemoteIDs,
		Checksum:     checksum.Sum(data),
		LastModified: e.LastModified,
	}
	return db.UpsertEntry(row, e.Body)
}
