// Package storequeue is a local at-least-once delivery queue backing
// the D1 Sync client: a trade record generated while the dashboard
// store is briefly unreachable is persisted here and retried on the
// next drain, rather than silently dropped.
package storequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"paperrunner/internal/logging"
	"paperrunner/internal/storeclient"
)

// Queue wraps a SQLite-backed pending-trade table.
type Queue struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (or creates) the queue database at path and runs its
// single migration.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open storequeue db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping storequeue db: %w", err)
	}
	q := &Queue{db: db, log: logging.For("storequeue")}
	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate storequeue db: %w", err)
	}
	return q, nil
}

func (q *Queue) migrate() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_trades (
			id          TEXT PRIMARY KEY,
			payload_json TEXT NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue persists a trade record for later delivery.
func (q *Queue) Enqueue(ctx context.Context, trade storeclient.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending_trades (id, payload_json, attempts, created_at) VALUES (?, ?, 0, ?)`,
		trade.ID, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("enqueue trade: %w", err)
	}
	return nil
}

type pendingRow struct {
	id       string
	trade    storeclient.Trade
	attempts int
}

func (q *Queue) pending(ctx context.Context) ([]pendingRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, payload_json, attempts FROM pending_trades ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending trades: %w", err)
	}
	defer rows.Close()

	var pending []pendingRow
	for rows.Next() {
		var id, payload string
		var attempts int
		if err := rows.Scan(&id, &payload, &attempts); err != nil {
			return nil, fmt.Errorf("scan pending trade: %w", err)
		}
		var trade storeclient.Trade
		if err := json.Unmarshal([]byte(payload), &trade); err != nil {
			q.log.Warnf("dropping unparseable queued trade %s: %v", id, err)
			q.delete(ctx, id)
			continue
		}
		pending = append(pending, pendingRow{id: id, trade: trade, attempts: attempts})
	}
	return pending, rows.Err()
}

func (q *Queue) delete(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_trades WHERE id = ?`, id)
	return err
}

func (q *Queue) bumpAttempts(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE pending_trades SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// maxAttempts bounds how many times a single record is retried before
// it's logged and dropped, so a permanently malformed record can't
// wedge the drain loop forever.
const maxAttempts = 20

// Drain attempts to deliver every pending trade via store.RecordTrade,
// removing each on success and bumping its attempt count on failure.
// Returns the number of records successfully delivered.
func (q *Queue) Drain(ctx context.Context, store *storeclient.Client) (int, error) {
	pending, err := q.pending(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, row := range pending {
		if err := store.RecordTrade(ctx, row.trade); err != nil {
			q.log.Warnf("retry delivery failed for trade %s (attempt %d): %v", row.id, row.attempts+1, err)
			if row.attempts+1 >= maxAttempts {
				q.log.Errorf("dropping trade %s after %d failed attempts", row.id, row.attempts+1)
				q.delete(ctx, row.id)
				continue
			}
			q.bumpAttempts(ctx, row.id)
			continue
		}
		q.delete(ctx, row.id)
		delivered++
	}
	return delivered, nil
}

// Len returns the current count of queued-but-undelivered trades.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_trades`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending trades: %w", err)
	}
	return n, nil
}
