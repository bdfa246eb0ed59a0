// Package sqlite provides the durable storage adapter backing the
// credential store, tenant rate-limit overrides, and the audit trail.
// A single database file holds all three tables; SQLite's single-writer
// model is enforced with MaxOpenConns(1) and a WAL journal.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/ratelimit"
)

const (
	defaultBusyTimeout   = 5 * time.Second
	defaultRetentionDays = 90

	// Retention sweeps run nightly, off-peak.
	sweepSchedule = "0 3 * * *"
)

// Config configures the SQLite store.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration

	// RetentionDays is how long audit rows are kept before the nightly
	// sweep removes them. Zero means the default (90); negative disables
	// the sweep entirely.
	RetentionDays int

	// Logger receives sweep results. Optional.
	Logger *slog.Logger
}

// Store is the SQLite-backed implementation of the credential store,
// the tenant limit store, and the audit store.
type Store struct {
	db            *sql.DB
	logger        *slog.Logger
	retentionDays int
	sweeper       *cron.Cron
	closeOnce     sync.Once

	now func() time.Time

	listKeysStmt   *sql.Stmt
	getKeyStmt     *sql.Stmt
	insertKeyStmt  *sql.Stmt
	setEnabledStmt *sql.Stmt
	updateHashStmt *sql.Stmt
	touchKeyStmt   *sql.Stmt

	getTenantStmt *sql.Stmt
	setTenantStmt *sql.Stmt

	auditInsertStmt *sql.Stmt
	auditRecentStmt *sql.Stmt
	auditSweepStmt  *sql.Stmt
}

// Open opens (creating if necessary) the database at cfg.Path, applies
// the schema, prepares statements, and starts the audit retention sweep.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:            db,
		logger:        cfg.Logger,
		retentionDays: cfg.RetentionDays,
		now:           time.Now,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	if cfg.RetentionDays > 0 {
		s.sweeper = cron.New()
		if _, err := s.sweeper.AddFunc(sweepSchedule, s.sweepAudit); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to schedule audit sweep: %w", err)
		}
		s.sweeper.Start()
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS tenant_limits (
		tenant_id TEXT PRIMARY KEY,
		capacity REAL NOT NULL,
		refill_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	stmts := []struct {
		dst  **sql.Stmt
		name string
		sql  string
	}{
		{&s.listKeysStmt, "list keys", `
			SELECT id, name, key_hash, role, enabled, created_at, last_used_at
			FROM api_keys ORDER BY id`},
		{&s.getKeyStmt, "get key", `
			SELECT id, name, key_hash, role, enabled, created_at, last_used_at
			FROM api_keys WHERE id = ?`},
		{&s.insertKeyStmt, "insert key", `
			INSERT INTO api_keys (name, key_hash, role, enabled, created_at)
			VALUES (?, ?, ?, 1, ?)`},
		{&s.setEnabledStmt, "set enabled", `
			UPDATE api_keys SET enabled = ? WHERE id = ?`},
		{&s.updateHashStmt, "update hash", `
			UPDATE api_keys SET key_hash = ? WHERE id = ?`},
		{&s.touchKeyStmt, "touch key", `
			UPDATE api_keys SET last_used_at = ? WHERE id = ?`},
		{&s.getTenantStmt, "get tenant limit", `
			SELECT capacity, refill_rate FROM tenant_limits WHERE tenant_id = ?`},
		{&s.setTenantStmt, "set tenant limit", `
			INSERT INTO tenant_limits (tenant_id, capacity, refill_rate)
			VALUES (?, ?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET
				capacity = excluded.capacity,
				refill_rate = excluded.refill_rate`},
		{&s.auditInsertStmt, "insert audit", `
			INSERT INTO audit (ts, actor, action, path, status, note)
			VALUES (?, ?, ?, ?, ?, ?)`},
		{&s.auditRecentStmt, "recent audit", `
			SELECT id, ts, actor, action, path, status, note
			FROM audit ORDER BY id DESC LIMIT ?`},
		{&s.auditSweepStmt, "sweep audit", `
			DELETE FROM audit WHERE ts < ?`},
	}

	for _, st := range stmts {
		prepared, err := s.db.Prepare(st.sql)
		if err != nil {
			return fmt.Errorf("failed to prepare %s statement: %w", st.name, err)
		}
		*st.dst = prepared
	}
	return nil
}

// ListAPIKeys returns all key records ordered by id.
func (s *Store) ListAPIKeys(ctx context.Context) ([]auth.APIKeyRecord, error) {
	rows, err := s.listKeysStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var records []auth.APIKeyRecord
	for rows.Next() {
		rec, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return records, nil
}

// GetAPIKey retrieves one record by id.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*auth.APIKeyRecord, error) {
	row := s.getKeyStmt.QueryRowContext(ctx, id)
	rec, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateAPIKey inserts a new enabled key and returns the stored record.
func (s *Store) CreateAPIKey(ctx context.Context, name string, role auth.Role, keyHash string) (*auth.APIKeyRecord, error) {
	now := s.now().UTC()
	res, err := s.insertKeyStmt.ExecContext(ctx, name, keyHash, string(role), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert api key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted key id: %w", err)
	}
	return &auth.APIKeyRecord{
		ID:        id,
		Name:      name,
		KeyHash:   keyHash,
		Role:      role,
		Enabled:   true,
		CreatedAt: now,
	}, nil
}

// SetAPIKeyEnabled toggles the enabled flag.
func (s *Store) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.setEnabledStmt.ExecContext(ctx, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return requireRow(res)
}

// UpdateAPIKeyHash replaces the stored secret hash.
func (s *Store) UpdateAPIKeyHash(ctx context.Context, id int64, keyHash string) error {
	res, err := s.updateHashStmt.ExecContext(ctx, keyHash, id)
	if err != nil {
		return fmt.Errorf("failed to update api key hash: %w", err)
	}
	return requireRow(res)
}

// TouchAPIKey updates the last-used timestamp.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	res, err := s.touchKeyStmt.ExecContext(ctx, s.now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return requireRow(res)
}

// GetTenantLimit returns the bucket override for tenantID, or (nil, nil)
// when no override exists.
func (s *Store) GetTenantLimit(ctx context.Context, tenantID string) (*ratelimit.BucketConfig, error) {
	var cfg ratelimit.BucketConfig
	err := s.getTenantStmt.QueryRowContext(ctx, tenantID).Scan(&cfg.Capacity, &cfg.RefillRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant limit: %w", err)
	}
	return &cfg, nil
}

// SetTenantLimit creates or replaces the bucket override for tenantID.
func (s *Store) SetTenantLimit(ctx context.Context, tenantID string, cfg ratelimit.BucketConfig) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if _, err := s.setTenantStmt.ExecContext(ctx, tenantID, cfg.Capacity, cfg.RefillRate); err != nil {
		return fmt.Errorf("failed to save tenant limit: %w", err)
	}
	return nil
}

// Append writes one audit entry. The store assigns the id and timestamp.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.auditInsertStmt.ExecContext(ctx,
		s.now().UTC().Unix(),
		entry.Actor,
		entry.Action,
		entry.Path,
		entry.Status,
		entry.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit audit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.auditRecentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e  audit.Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.Path, &e.Status, &e.Note); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}

// sweepAudit deletes audit rows older than the retention window.
func (s *Store) sweepAudit() {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	res, err := s.auditSweepStmt.Exec(cutoff.Unix())
	if err != nil {
		s.logger.Error("audit retention sweep failed", "error", err)
		return
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		s.logger.Info("audit retention sweep completed",
			"deleted", deleted,
			"retention_days", s.retentionDays,
		)
	}
}

// Close stops the retention sweep and closes the database.
// Close is idempotent.
func (s *Store) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.sweeper != nil {
			ctx := s.sweeper.Stop()
			<-ctx.Done()
		}

		for _, stmt := range []*sql.Stmt{
			s.listKeysStmt, s.getKeyStmt, s.insertKeyStmt,
			s.setEnabledStmt, s.updateHashStmt, s.touchKeyStmt,
			s.getTenantStmt, s.setTenantStmt,
			s.auditInsertStmt, s.auditRecentStmt, s.auditSweepStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (auth.APIKeyRecord, error) {
	var (
		rec       auth.APIKeyRecord
		roleText  string
		enabled   int
		createdAt int64
		lastUsed  sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.KeyHash, &roleText, &enabled, &createdAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan api key row: %w", err)
	}

	role, ok := auth.ParseRole(roleText)
	if !ok {
		// Unknown roles grant nothing.
		role = auth.Role(roleText)
	}
	rec.Role = role
	rec.Enabled = enabled != 0
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastUsed.Valid {
		t := time.Unix(lastUsed.Int64, 0).UTC()
		rec.LastUsedAt = &t
	}
	return rec, nil
}

// SelfTest verifies the three security tables survived whatever happened
// to the database file since startup.
func (s *Store) SelfTest(ctx context.Context) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master
		 WHERE type = 'table' AND name IN ('api_keys', 'audit', 'tenant_limits')`,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if count != 3 {
		return fmt.Errorf("expected 3 security tables, found %d", count)
	}
	return nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return auth.ErrKeyNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface verification.
var (
	_ auth.CredentialStore       = (*Store)(nil)
	_ ratelimit.TenantLimitStore = (*Store)(nil)
	_ audit.Store                = (*Store)(nil)
)
