package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the audit database schema.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    policy_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    target_id TEXT,
    vars TEXT,
    message TEXT,
    time_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_policy ON audit_events(policy_id);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_events(time_ns);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
