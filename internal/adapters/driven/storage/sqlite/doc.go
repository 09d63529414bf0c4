// Package sqlite provides a SQLite-backed implementation of driven.IndexStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Layout
//
// Each session owns one database file:
//
//	<data_dir>/sessions/<base64url(session_id)>/index.db
//
// A snapshot is written to a temporary file in the session directory and
// renamed over index.db, so readers see either the old or the new snapshot.
//
// # Schema
//
// The per-file schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, snapshots are stored under ~/.docqa/data.
package sqlite
