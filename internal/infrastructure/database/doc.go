// Package database provides SQLite database connectivity for Breeze Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations (embedded in the binary)
//   - Connection pooling and lifecycle management
//
// The database stores the discovered breezer catalogue (so device records
// survive restarts) and cumulative poll diagnostics. It never stores cloud
// credentials; those come from the environment via the config package.
//
// Usage:
//
//	db, err := database.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT, and each migration file has both .up.sql and .down.sql.
package database
