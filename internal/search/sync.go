package search

import (
	"log/slog"

	"github.com/starford/inkwell/internal/parser"
	"github.com/starford/inkwell/internal/storage"
)

// Sync walks the note directory and brings the search index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}

		if checksums[f.Path] == f.Checksum {
			continue
		}

		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("search: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, f.Path, data); err != nil {
			logger.Warn("search: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("search: indexed", slog.String("path", f.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.Delete(p); err != nil {
				logger.Warn("search: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("search: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile parses data and upserts it into db.
func IndexFile(db *DB, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := Row{
		Path:     path,
		Title:    res.Title,
		Checksum: storage.Checksum(data),
		Tags:     res.Tags,
	}
	return db.Upsert(row, res.Body)
}
