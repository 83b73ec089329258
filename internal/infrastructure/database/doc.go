// Package database provides SQLite connectivity for the list sync service.
//
// The database holds two kinds of administrative records:
//   - config entries (one per watched todo list)
//   - the entity registry (one record per materialised sensor)
//
// List item state itself is never stored; it is always re-read from
// Home Assistant.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded from the migrations package
//   - STRICT tables for type safety
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
