package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-power/internal/models"

	"go.uber.org/zap"
)

const historySchema = `
	CREATE TABLE IF NOT EXISTS power_history (
		timestamp   TIMESTAMPTZ PRIMARY KEY,
		power_watts INTEGER NOT NULL CHECK (power_watts >= 0)
	)`

// PostgresHistoryLog stores points in the power_history table.
// Ordering is enforced in the INSERT itself so a second writer cannot interleave.
type PostgresHistoryLog struct {
	db     *sql.DB
	logger *zap.Logger

	mu   sync.Mutex
	last time.Time
}

func NewPostgresHistoryLog(db *sql.DB, logger *zap.Logger) *PostgresHistoryLog {
	return &PostgresHistoryLog{db: db, logger: logger}
}

// EnsureSchema creates the table when missing
func (r *PostgresHistoryLog) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("failed to create power_history table: %w", err)
	}
	return nil
}

// LoadLast primes the in-memory order check from the newest stored row
func (r *PostgresHistoryLog) LoadLast(ctx context.Context) error {
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM power_history`).Scan(&last); err != nil {
		return fmt.Errorf("%w: failed to load last history timestamp: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if last.Valid {
		r.last = last.Time
	}
	r.logger.Info("History table ready", zap.Time("last_timestamp", r.last))
	return nil
}

func (r *PostgresHistoryLog) Append(ctx context.Context, p models.HistoryPoint) error {
	p.Timestamp = normalize(p.Timestamp)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() && !p.Timestamp.After(r.last) {
		return fmt.Errorf("%w: %s is not after %s", ErrOutOfOrder,
			p.Timestamp.Format(time.RFC3339Nano), r.last.Format(time.RFC3339Nano))
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO power_history (timestamp, power_watts)
		SELECT $1, $2
		WHERE NOT EXISTS (SELECT 1 FROM power_history WHERE timestamp >= $1)`,
		p.Timestamp.UTC(), p.PowerWatts,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert history point: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to insert history point: %v", ErrStorage, err)
	}
	if n == 0 {
		// another writer got there first
		return fmt.Errorf("%w: %s is not after the newest stored point", ErrOutOfOrder,
			p.Timestamp.Format(time.RFC3339Nano))
	}

	r.last = p.Timestamp
	return nil
}

func (r *PostgresHistoryLog) Query(ctx context.Context, tr models.TimeRange) (models.HistorySeries, error) {
	var where []string
	var args []any
	argN := 1
	if !tr.From.IsZero() {
		where = append(where, fmt.Sprintf("timestamp >= $%d", argN))
		args = append(args, tr.From.UTC())
		argN++
	}
	if !tr.To.IsZero() {
		where = append(where, fmt.Sprintf("timestamp <= $%d", argN))
		args = append(args, tr.To.UTC())
		argN++
	}

	q := `SELECT timestamp, power_watts FROM power_history`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query history: %v", ErrStorage, err)
	}
	defer rows.Close()

	series := models.HistorySeries{}
	for rows.Next() {
		var p models.HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.PowerWatts); err != nil {
			return nil, fmt.Errorf("%w: failed to scan history row: %v", ErrStorage, err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate history rows: %v", ErrStorage, err)
	}
	return series, nil
}
