// Package database provides the SQLite store behind the setpoint journal.
//
// The store is a single file opened in WAL mode so the HTTP API can list
// journal entries while the control loop is writing them. Schema changes are
// applied from embedded YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs; the
// migrations package registers them with MigrationsFS at init time.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All statements use ? placeholders. The database file is chmod 0600 after
// the first open.
package database
