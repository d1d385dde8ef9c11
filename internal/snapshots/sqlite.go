package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/f-sync/socialpulse/internal/analysis"
)

const (
	sqliteDriverName      = "sqlite"
	inMemoryDatabasePath  = ":memory:"
	sharedMemoryDSNFormat = "file:%s?mode=memory&cache=shared"

	errMessageOpenDatabase   = "open database"
	errMessagePingDatabase   = "ping database"
	errMessageEnableWAL      = "enable WAL mode"
	errMessageCreateTables   = "create tables"
	errMessageBeginSave      = "begin save transaction"
	errMessageInsertSnapshot = "insert snapshot"
	errMessageEvictSnapshots = "evict snapshots"
	errMessageCommitSave     = "commit save transaction"
	errMessageQuerySnapshots = "query snapshots"
	errMessageScanSnapshot   = "scan snapshot"
	errMessageDeleteSnapshot = "delete snapshot"
	errMessageParseTimestamp = "parse snapshot timestamp"
)

const snapshotSchema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		payload TEXT NOT NULL
	);
`

const snapshotColumns = `id, label, created_at, payload`

// SQLiteStore persists snapshots in a single SQLite table, keeping the newest entries
// up to its capacity. Safe for concurrent use.
type SQLiteStore struct {
	database *sql.DB
	mutex    sync.RWMutex
	options  storeOptions
}

// OpenSQLiteStore opens or creates the database at databasePath. The path ":memory:"
// selects an in-memory database private to the returned store.
func OpenSQLiteStore(databasePath string, options ...Option) (*SQLiteStore, error) {
	connectionString := databasePath
	if databasePath == inMemoryDatabasePath {
		connectionString = fmt.Sprintf(sharedMemoryDSNFormat, uuid.NewString())
	}

	database, err := sql.Open(sqliteDriverName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenDatabase, err)
	}
	if databasePath == inMemoryDatabasePath {
		database.SetMaxOpenConns(1)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("%s: %w", errMessagePingDatabase, err)
	}
	if databasePath != inMemoryDatabasePath {
		if _, err := database.Exec("PRAGMA journal_mode=WAL"); err != nil {
			database.Close()
			return nil, fmt.Errorf("%s: %w", errMessageEnableWAL, err)
		}
	}
	if _, err := database.Exec(snapshotSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("%s: %w", errMessageCreateTables, err)
	}
	return &SQLiteStore{database: database, options: resolveOptions(options)}, nil
}

// Save inserts the snapshot and evicts rows beyond the capacity in one transaction.
func (store *SQLiteStore) Save(ctx context.Context, result analysis.Analysis, label string) (string, error) {
	payload, err := encodeAnalysis(result)
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	transaction, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageBeginSave, err)
	}
	defer transaction.Rollback()

	identifier := store.options.newID()
	createdAt := store.options.now().UTC().Format(time.RFC3339Nano)
	if _, err := transaction.ExecContext(ctx,
		`INSERT INTO snapshots (id, label, created_at, payload) VALUES (?, ?, ?, ?)`,
		identifier, label, createdAt, string(payload),
	); err != nil {
		return "", fmt.Errorf("%s: %w", errMessageInsertSnapshot, err)
	}
	if _, err := transaction.ExecContext(ctx,
		`DELETE FROM snapshots WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)`,
		store.options.capacity,
	); err != nil {
		return "", fmt.Errorf("%s: %w", errMessageEvictSnapshots, err)
	}
	if err := transaction.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", errMessageCommitSave, err)
	}
	return identifier, nil
}

// List returns the retained snapshots, most recent first.
func (store *SQLiteStore) List(ctx context.Context) ([]analysis.Snapshot, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	rows, err := store.database.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageQuerySnapshots, err)
	}
	defer rows.Close()

	snapshots := []analysis.Snapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageQuerySnapshots, err)
	}
	return snapshots, nil
}

// Get returns the snapshot with the identifier or ErrSnapshotNotFound.
func (store *SQLiteStore) Get(ctx context.Context, identifier string) (analysis.Snapshot, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	row := store.database.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, identifier)
	return scanSnapshot(row)
}

// Latest returns the most recent snapshot or ErrSnapshotNotFound when empty.
func (store *SQLiteStore) Latest(ctx context.Context) (analysis.Snapshot, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	row := store.database.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots ORDER BY seq DESC LIMIT 1`)
	return scanSnapshot(row)
}

// Remove deletes the snapshot with the identifier or returns ErrSnapshotNotFound.
func (store *SQLiteStore) Remove(ctx context.Context, identifier string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	outcome, err := store.database.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, identifier)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageDeleteSnapshot, err)
	}
	affected, err := outcome.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageDeleteSnapshot, err)
	}
	if affected == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

// Clear discards every snapshot.
func (store *SQLiteStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, err := store.database.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("%s: %w", errMessageDeleteSnapshot, err)
	}
	return nil
}

// Close closes the database connection.
func (store *SQLiteStore) Close() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.database.Close()
}

type rowScanner interface {
	Scan(destinations ...any) error
}

func scanSnapshot(row rowScanner) (analysis.Snapshot, error) {
	var (
		stored    storedSnapshot
		createdAt string
		payload   string
	)
	if err := row.Scan(&stored.id, &stored.label, &createdAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return analysis.Snapshot{}, ErrSnapshotNotFound
		}
		return analysis.Snapshot{}, fmt.Errorf("%s: %w", errMessageScanSnapshot, err)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return analysis.Snapshot{}, fmt.Errorf("%s: %w", errMessageParseTimestamp, err)
	}
	stored.timestamp = timestamp
	stored.payload = []byte(payload)
	return decodeSnapshot(stored)
}
