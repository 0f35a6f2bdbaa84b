package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
// This backend keeps an append-only snapshot history and is suitable for
// single-instance deployments where statistics should survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent performance
// and automatic checkpointing to balance write performance with durability.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	saveStmt    *sql.Stmt
	loadStmt    *sql.Stmt
	listStmt    *sql.Stmt
	listAllStmt *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:             dbPath,
		CheckpointInterval: 5 * time.Minute,
		BusyTimeout:        5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	// Apply defaults
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	// Initialize schema
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Prepare statements
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	// Start background checkpoint goroutine
	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS limiter_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		available_permits INTEGER NOT NULL,
		successful_leases INTEGER NOT NULL,
		failed_leases INTEGER NOT NULL,
		captured_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_key ON limiter_snapshots(policy, partition_key, captured_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON limiter_snapshots(captured_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO limiter_snapshots (policy, partition_key, available_permits, successful_leases, failed_leases, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT policy, partition_key, available_permits, successful_leases, failed_leases, captured_at
		FROM limiter_snapshots
		WHERE policy = ? AND partition_key = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT policy, partition_key, available_permits, successful_leases, failed_leases, MAX(captured_at)
		FROM limiter_snapshots
		WHERE policy = ?
		GROUP BY policy, partition_key
		ORDER BY policy, partition_key
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	s.listAllStmt, err = s.db.Prepare(`
		SELECT policy, partition_key, available_permits, successful_leases, failed_leases, MAX(captured_at)
		FROM limiter_snapshots
		GROUP BY policy, partition_key
		ORDER BY policy, partition_key
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list-all statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM limiter_snapshots
		WHERE captured_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Save persists a batch of snapshots in a single transaction.
func (s *SQLiteBackend) Save(ctx context.Context, snapshots []*Snapshot) error {
	for _, snap := range snapshots {
		if snap == nil {
			return fmt.Errorf("snapshot cannot be nil")
		}
		if snap.Policy == "" {
			return fmt.Errorf("policy cannot be empty")
		}
		if snap.Partition == "" {
			return fmt.Errorf("partition cannot be empty")
		}
	}
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.saveStmt)
	for _, snap := range snapshots {
		capturedAt := snap.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now()
		}

		_, err = stmt.ExecContext(ctx,
			snap.Policy,
			snap.Partition,
			snap.AvailablePermits,
			snap.SuccessfulLeases,
			snap.FailedLeases,
			capturedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}

	return nil
}

// Load returns the most recent snapshot for a policy and partition.
func (s *SQLiteBackend) Load(ctx context.Context, policy, partition string) (*Snapshot, error) {
	if policy == "" {
		return nil, fmt.Errorf("policy cannot be empty")
	}
	if partition == "" {
		return nil, fmt.Errorf("partition cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap       Snapshot
		capturedAt int64
	)

	err := s.loadStmt.QueryRowContext(ctx, policy, partition).Scan(
		&snap.Policy,
		&snap.Partition,
		&snap.AvailablePermits,
		&snap.SuccessfulLeases,
		&snap.FailedLeases,
		&capturedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap.CapturedAt = time.Unix(0, capturedAt)
	return &snap, nil
}

// List returns the most recent snapshot of every partition under a policy.
// An empty policy lists all partitions.
func (s *SQLiteBackend) List(ctx context.Context, policy string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if policy == "" {
		rows, err = s.listAllStmt.QueryContext(ctx)
	} else {
		rows, err = s.listStmt.QueryContext(ctx, policy)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		var (
			snap       Snapshot
			capturedAt int64
		)

		if err := rows.Scan(&snap.Policy, &snap.Partition, &snap.AvailablePermits, &snap.SuccessfulLeases, &snap.FailedLeases, &capturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		snap.CapturedAt = time.Unix(0, capturedAt)
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return snapshots, nil
}

// Cleanup removes snapshots captured before the given time.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		// Signal checkpoint goroutine to stop
		close(s.done)

		// Close prepared statements
		if s.saveStmt != nil {
			s.saveStmt.Close()
		}
		if s.loadStmt != nil {
			s.loadStmt.Close()
		}
		if s.listStmt != nil {
			s.listStmt.Close()
		}
		if s.listAllStmt != nil {
			s.listAllStmt.Close()
		}
		if s.cleanupStmt != nil {
			s.cleanupStmt.Close()
		}

		// Close database
		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Run checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
