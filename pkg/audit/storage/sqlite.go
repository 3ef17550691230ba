package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/tether/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 4
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Storage using SQLite.
type SQLiteStorage struct {
	db        *sql.DB
	config    *SQLiteConfig
	insert    *sql.Stmt
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLiteStorage opens the database and initializes its schema.
func NewSQLiteStorage(cfg *SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
	)

	return s, nil
}

// initialize sets pragmas, creates the schema and prepares statements.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	insert, err := s.db.Prepare(`
		INSERT INTO audit_events (id, policy_id, kind, target_id, vars, message, time_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return audit.NewStorageError("sqlite", "prepare", err)
	}
	s.insert = insert

	return nil
}

// Store implements audit.Storage.
func (s *SQLiteStorage) Store(ctx context.Context, ev *audit.Event) error {
	var vars sql.NullString
	if len(ev.Vars) > 0 {
		b, err := json.Marshal(ev.Vars)
		if err != nil {
			return audit.NewStorageError("sqlite", "store", err)
		}
		vars = sql.NullString{String: string(b), Valid: true}
	}

	var target sql.NullString
	if ev.TargetID != nil {
		target = sql.NullString{String: *ev.TargetID, Valid: true}
	}

	_, err := s.insert.ExecContext(ctx,
		ev.ID,
		ev.PolicyID,
		string(ev.Kind),
		target,
		vars,
		ev.Message,
		ev.Time.UnixNano(),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query implements audit.Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	if q == nil {
		q = &audit.Query{}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, audit.NewStorageError("sqlite", "query", audit.ErrInvalidQuery)
	}

	where, args := buildWhere(q)
	order := "ASC"
	if q.Desc {
		order = "DESC"
	}

	query := `SELECT id, policy_id, kind, target_id, vars, message, time_ns FROM audit_events` +
		where + ` ORDER BY time_ns ` + order + `, seq ` + order
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*audit.Event{}
	for rows.Next() {
		var (
			ev     audit.Event
			kind   string
			target sql.NullString
			vars   sql.NullString
			msg    sql.NullString
			timeNs int64
		)
		if err := rows.Scan(&ev.ID, &ev.PolicyID, &kind, &target, &vars, &msg, &timeNs); err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		ev.Kind = audit.Kind(kind)
		ev.Message = msg.String
		ev.Time = time.Unix(0, timeNs)
		if target.Valid {
			t := target.String
			ev.TargetID = &t
		}
		if vars.Valid {
			if err := json.Unmarshal([]byte(vars.String), &ev.Vars); err != nil {
				return nil, audit.NewStorageError("sqlite", "decode_vars", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// Count implements audit.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	if q == nil {
		q = &audit.Query{}
	}
	where, args := buildWhere(q)

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&n); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Delete implements audit.Storage.
func (s *SQLiteStorage) Delete(ctx context.Context, q *audit.Query) (int64, error) {
	if q == nil {
		q = &audit.Query{}
	}
	where, args := buildWhere(q)

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events`+where, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}

	s.logger.Debug("audit events deleted", "count", n)
	return n, nil
}

// Close implements audit.Storage.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.insert != nil {
			s.insert.Close()
		}
		err = s.db.Close()
	})
	return err
}

// buildWhere renders the filter part of q as a WHERE clause.
func buildWhere(q *audit.Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.PolicyID != "" {
		clauses = append(clauses, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if q.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Since != nil {
		clauses = append(clauses, "time_ns >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		clauses = append(clauses, "time_ns <= ?")
		args = append(args, q.Until.UnixNano())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
