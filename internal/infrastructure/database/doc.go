// Package database provides the SQLite persistent store for the room coordinator.
//
// This package manages:
//   - Pooled connections with WAL mode so reads proceed during writes
//   - Schema migrations embedded in the binary
//   - Bounded retry with backoff for busy, locked or dropped connections
//
// Repositories in the domain packages (override, directory, schedule,
// telemetry) take a *sql.DB and a RetryPolicy. When a policy gives up the
// repository returns ErrRetriesExhausted and the caller degrades to empty
// or default results instead of failing the process.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
