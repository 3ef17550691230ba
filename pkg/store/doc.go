// Package store persists policy records.
//
// A Record holds everything a user configures for one policy plus the
// policy's opaque internal data. Three backends implement Backend:
//
//   - MemoryBackend keeps records in process memory.
//   - SQLiteBackend stores records in a SQLite database (pure-Go driver).
//   - FileBackend stores records in a YAML document that may be edited by
//     hand and watched for changes.
//
// Open selects a backend from configuration.
package store
