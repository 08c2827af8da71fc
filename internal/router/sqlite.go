package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"dtnex/internal/dtnerr"
)

// ErrNotSupported is returned by ListContacts implementations that do not
// offer the diagnostic read side; it is optional for an Adapter to
// implement.
var ErrNotSupported = errors.New("operation not supported by this router adapter")

const schema = `
CREATE TABLE IF NOT EXISTS plans (
	neighbor   INTEGER PRIMARY KEY,
	observed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	region     INTEGER NOT NULL,
	src        INTEGER NOT NULL,
	dst        INTEGER NOT NULL,
	from_time  INTEGER NOT NULL,
	to_time    INTEGER NOT NULL,
	xmit_rate  REAL NOT NULL,
	confidence REAL NOT NULL,
	PRIMARY KEY (region, src, dst, from_time, to_time)
);
CREATE TABLE IF NOT EXISTS ranges (
	src       INTEGER NOT NULL,
	dst       INTEGER NOT NULL,
	from_time INTEGER NOT NULL,
	to_time   INTEGER NOT NULL,
	owlt      REAL NOT NULL,
	PRIMARY KEY (src, dst, from_time, to_time)
);
`

// SQLiteAdapter is the reference Adapter implementation, grounded on
// scionproto-scion's private/storage/db/sqlite.go connection-setup pattern
// (WAL journaling, busy_timeout, a single writer). Contact/range insertion
// is idempotent: before inserting, the adapter looks up a row with the same
// primary key and classifies a hit as Duplicate (identical row) or
// AlreadyExists (conflicting parameters for the same key) rather than
// surfacing a SQL error to the engine.
type SQLiteAdapter struct {
	db          *sql.DB
	mu          sync.Mutex
	localNodeID uint64
}

// OpenSQLiteAdapter opens (creating if absent) a SQLite-backed router
// store at path (":memory:" is accepted for tests) and seeds it with the
// given static neighbor set, since the spec's Non-goals exclude discovery
// of new neighbors: the neighbor set here is fixed configuration, exactly
// as the original "local DTN router" is expected to be configured outside
// this process.
func OpenSQLiteAdapter(ctx context.Context, path string, localNodeID uint64, neighbors []uint64) (*SQLiteAdapter, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite router store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply router schema: %w", err)
	}
	a := &SQLiteAdapter{db: db, localNodeID: localNodeID}
	if err := a.seedPlans(ctx, neighbors); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) seedPlans(ctx context.Context, neighbors []uint64) error {
	now := time.Now().Unix()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed plans tx: %w", err)
	}
	defer tx.Rollback()
	for _, n := range neighbors {
		if n == a.localNodeID {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plans(neighbor, observed_at) VALUES(?, ?)
			 ON CONFLICT(neighbor) DO UPDATE SET observed_at = excluded.observed_at`,
			int64(n), now); err != nil {
			return fmt.Errorf("seed plan for neighbor %d: %w", n, err)
		}
	}
	return tx.Commit()
}

func (a *SQLiteAdapter) LocalNodeID(ctx context.Context) (uint64, error) {
	return a.localNodeID, nil
}

func (a *SQLiteAdapter) Neighbors(ctx context.Context) ([]Plan, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT neighbor, observed_at FROM plans WHERE neighbor != ?`, int64(a.localNodeID))
	if err != nil {
		return nil, fmt.Errorf("%w: query plans: %v", ErrGone, err)
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		var neighbor, observedAt int64
		if err := rows.Scan(&neighbor, &observedAt); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		out = append(out, Plan{Neighbor: uint64(neighbor), ObservedAt: time.Unix(observedAt, 0)})
	}
	return out, rows.Err()
}

// ErrGone marks a router API call that observed the router has vanished:
// it cannot begin a read transaction, cannot find the contact index, or
// finds an empty contact table where one is expected. It is
// dtnerr.ErrRouterGone, so the engine treats any error wrapping ErrGone as
// a gone router and escalates it to the supervisor.
var ErrGone = dtnerr.ErrRouterGone

func (a *SQLiteAdapter) InsertContact(ctx context.Context, region int, fromTime, toTime time.Time, src, dst uint64, xmitRate, confidence float64) (InsertResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var existingRate, existingConfidence float64
	err := a.db.QueryRowContext(ctx,
		`SELECT xmit_rate, confidence FROM contacts WHERE region=? AND src=? AND dst=? AND from_time=? AND to_time=?`,
		region, int64(src), int64(dst), fromTime.Unix(), toTime.Unix(),
	).Scan(&existingRate, &existingConfidence)
	switch {
	case err == nil:
		if existingRate == xmitRate && existingConfidence == confidence {
			return Duplicate, nil
		}
		return AlreadyExists, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return 0, fmt.Errorf("%w: query contact: %v", ErrGone, err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO contacts(region, src, dst, from_time, to_time, xmit_rate, confidence) VALUES(?,?,?,?,?,?,?)`,
		region, int64(src), int64(dst), fromTime.Unix(), toTime.Unix(), xmitRate, confidence)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	return Ok, nil
}

func (a *SQLiteAdapter) InsertRange(ctx context.Context, fromTime, toTime time.Time, src, dst uint64, owlt float64) (InsertResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var existingOWLT float64
	err := a.db.QueryRowContext(ctx,
		`SELECT owlt FROM ranges WHERE src=? AND dst=? AND from_time=? AND to_time=?`,
		int64(src), int64(dst), fromTime.Unix(), toTime.Unix(),
	).Scan(&existingOWLT)
	switch {
	case err == nil:
		if existingOWLT == owlt {
			return Duplicate, nil
		}
		return AlreadyExists, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return 0, fmt.Errorf("%w: query range: %v", ErrGone, err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO ranges(src, dst, from_time, to_time, owlt) VALUES(?,?,?,?,?)`,
		int64(src), int64(dst), fromTime.Unix(), toTime.Unix(), owlt)
	if err != nil {
		return 0, fmt.Errorf("insert range: %w", err)
	}
	return Ok, nil
}

func (a *SQLiteAdapter) IsAvailable(ctx context.Context) bool {
	return a.db.PingContext(ctx) == nil
}

func (a *SQLiteAdapter) ListContacts(ctx context.Context) ([]ContactRecord, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT src, dst, from_time, to_time FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("%w: query contacts: %v", ErrGone, err)
	}
	defer rows.Close()
	var out []ContactRecord
	for rows.Next() {
		var src, dst, from, to int64
		if err := rows.Scan(&src, &dst, &from, &to); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		out = append(out, ContactRecord{Src: uint64(src), Dst: uint64(dst), FromTime: time.Unix(from, 0), ToTime: time.Unix(to, 0)})
	}
	return out, rows.Err()
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

var _ Adapter = (*SQLiteAdapter)(nil)
