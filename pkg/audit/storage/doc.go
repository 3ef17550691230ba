// Package storage persists audit events.
//
// MemoryStorage keeps events in memory and is intended for tests and
// short-lived runs. SQLiteStorage writes events to a SQLite database in WAL
// mode.
package storage
