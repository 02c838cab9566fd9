// Package database provides SQLite database connectivity for GridPulse Core.
//
// The SQLite database is the durable side of the system: the device catalog
// (the authoritative registry of field devices) and the per-tenant alert log.
// The live, fast-changing side (merged device state, last telemetry) lives in
// the Redis-backed device state store and is deliberately allowed to expire.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// # Usage
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
// All queries in the repositories built on this package use parameterised
// statements.
package database
