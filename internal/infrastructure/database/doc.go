// Package database provides SQLite connectivity for the irrigation service.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, foreign keys, one connection)
//   - Schema migrations read from an fs.FS (normally migrations.FS)
//   - Transaction helpers used by the repositories
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql ships with a .down.sql.
package database
