package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/tether/pkg/conditions"
)

// SQLiteBackend implements Backend using SQLite for persistence.
type SQLiteBackend struct {
	db        *sql.DB
	dbPath    string
	logger    *slog.Logger
	mu        sync.RWMutex
	closeOnce sync.Once
	now       func() time.Time

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:      dbPath,
		BusyTimeout: 5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
		logger: slog.Default().With("component", "store.sqlite"),
		now:    time.Now,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policy_records (
		id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL,
		enforced INTEGER NOT NULL,
		logged INTEGER NOT NULL,
		limit_kind TEXT NOT NULL,
		custom_data TEXT,
		internal_data TEXT,
		conditions TEXT,
		use_global INTEGER NOT NULL,
		timer INTEGER,
		timer_remove INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	const columns = `id, enabled, enforced, logged, limit_kind, custom_data, internal_data,
		conditions, use_global, timer, timer_remove, updated_at`

	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO policy_records (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			enabled = excluded.enabled,
			enforced = excluded.enforced,
			logged = excluded.logged,
			limit_kind = excluded.limit_kind,
			custom_data = excluded.custom_data,
			internal_data = excluded.internal_data,
			conditions = excluded.conditions,
			use_global = excluded.use_global,
			timer = excluded.timer,
			timer_remove = excluded.timer_remove,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`SELECT ` + columns + ` FROM policy_records WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM policy_records WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`SELECT ` + columns + ` FROM policy_records ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// Save implements Backend.
func (s *SQLiteBackend) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewStorageError("save", "", ErrInvalidRecord)
	}

	customJSON, err := marshalNullable(rec.CustomData, rec.CustomData == nil)
	if err != nil {
		return NewStorageError("save", rec.ID, fmt.Errorf("failed to marshal custom data: %w", err))
	}
	condJSON, err := marshalNullable(rec.Conditions, rec.Conditions == nil)
	if err != nil {
		return NewStorageError("save", rec.ID, fmt.Errorf("failed to marshal conditions: %w", err))
	}

	var internal sql.NullString
	if len(rec.InternalData) > 0 {
		internal = sql.NullString{String: string(rec.InternalData), Valid: true}
	}

	var timer sql.NullInt64
	if rec.Timer != nil {
		timer = sql.NullInt64{Int64: rec.Timer.UnixMilli(), Valid: true}
	}

	limit := rec.Limit
	if limit == "" {
		limit = conditions.LimitNormal
	}

	updated := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		rec.ID,
		rec.Enabled,
		rec.Enforced,
		rec.Logged,
		string(limit),
		customJSON,
		internal,
		condJSON,
		rec.UseGlobal,
		timer,
		rec.TimerRemove,
		updated.UnixMilli(),
	)
	if err != nil {
		return NewStorageError("save", rec.ID, err)
	}

	rec.UpdatedAt = time.UnixMilli(updated.UnixMilli())
	return nil
}

// Load implements Backend.
func (s *SQLiteBackend) Load(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.loadStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, NewStorageError("load", id, err)
	}
	return rec, nil
}

// Delete implements Backend.
func (s *SQLiteBackend) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
		return NewStorageError("delete", id, err)
	}
	return nil
}

// List implements Backend.
func (s *SQLiteBackend) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, NewStorageError("list", "", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, NewStorageError("list", "", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("list", "", fmt.Errorf("error iterating rows: %w", err))
	}

	return records, nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.deleteStmt, s.listStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
		s.logger.Debug("record store closed", "path", s.dbPath)
	})
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		limit       string
		customJSON  sql.NullString
		internal    sql.NullString
		condJSON    sql.NullString
		timer       sql.NullInt64
		updatedAtMs int64
	)

	err := row.Scan(
		&rec.ID,
		&rec.Enabled,
		&rec.Enforced,
		&rec.Logged,
		&limit,
		&customJSON,
		&internal,
		&condJSON,
		&rec.UseGlobal,
		&timer,
		&rec.TimerRemove,
		&updatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	rec.Limit = conditions.Limit(limit)
	rec.UpdatedAt = time.UnixMilli(updatedAtMs)

	if customJSON.Valid {
		if err := json.Unmarshal([]byte(customJSON.String), &rec.CustomData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom data: %w", err)
		}
	}
	if internal.Valid {
		rec.InternalData = json.RawMessage(internal.String)
	}
	if condJSON.Valid {
		rec.Conditions = &conditions.Set{}
		if err := json.Unmarshal([]byte(condJSON.String), rec.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}
	if timer.Valid {
		t := time.UnixMilli(timer.Int64)
		rec.Timer = &t
	}

	return &rec, nil
}

func marshalNullable(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
