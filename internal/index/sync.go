package index

import (
	"log/slog"

	"github.com/starford/typsite/internal/checksum"
	"github.com/starford/typsite/internal/storage"
)

// Reconcile brings a persisted ledger in line with the output tree:
//   - rows whose destination no longer exists are deleted
//   - rows whose file bytes changed on disk get their checksum cleared so
//     the next compile rewrites them
//
// It returns the number of rows touched.
func Reconcile(db *DB, store storage.Provider, logger *slog.Logger) (int, error) {
	rows, err := db.All()
	if err != nil {
		return 0, err
	}

	touched := 0
	for _, row := range rows {
		rel, err := store.Rel(row.Destination)
		if err != nil || !store.Exists(rel) {
			if err := db.Delete(row.Destination); err != nil {
				logger.Warn("reconcile: delete failed", slog.String("path", row.Destination), slog.String("error", err.Error()))
				continue
			}
			logger.Debug("reconcile: removed stale", slog.String("path", row.Destination))
			touched++
			continue
		}

		data, err := store.Read(rel)
		if err != nil {
			logger.Warn("reconcile: read failed", slog.String("path", row.Destination), slog.String("error", err.Error()))
			continue
		}
		if checksum.Sum(data) == row.Checksum {
			continue
		}
		row.Checksum = ""
		if err := db.Record(row); err != nil {
			logger.Warn("reconcile: update failed", slog.String("path", row.Destination), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("reconcile: output modified on disk", slog.String("path", row.Destination))
		touched++
	}

	return touched, nil
}
