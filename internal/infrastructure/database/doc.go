// Package database provides SQLite connectivity for graydispatch.
//
// It owns the connection (WAL mode, busy timeout, single writer) and the
// migration runner. The only schema today is the program execution journal.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are NULLABLE or have a DEFAULT, and
// every .up.sql has a matching .down.sql.
package database
