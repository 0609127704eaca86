package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pricebot/internal/market"
)

var (
	// ErrNotConfigured indicates the archive pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS price_observations (
        id          BIGSERIAL PRIMARY KEY,
        token       TEXT        NOT NULL,
        price_usd   NUMERIC     NOT NULL,
        observed_at TIMESTAMPTZ NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS price_observations_token_observed_at
        ON price_observations (token, observed_at);
    CREATE TABLE IF NOT EXISTS price_alerts (
        id             UUID        PRIMARY KEY,
        seq            BIGINT      NOT NULL,
        token          TEXT        NOT NULL,
        current_price  NUMERIC     NOT NULL,
        previous_price NUMERIC     NOT NULL,
        change_pct     NUMERIC     NOT NULL,
        triggered_at   TIMESTAMPTZ NOT NULL,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertObservationSQL = `INSERT INTO price_observations (
        token,
        price_usd,
        observed_at
    ) VALUES ($1,$2,$3);`

	insertAlertSQL = `INSERT INTO price_alerts (
        id,
        seq,
        token,
        current_price,
        previous_price,
        change_pct,
        triggered_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id::text,
        seq,
        token,
        current_price::text,
        previous_price::text,
        change_pct::text,
        triggered_at
    FROM price_alerts
    ORDER BY triggered_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Archive mirrors observations and alerts into a long-lived store.
type Archive interface {
	InsertObservation(ctx context.Context, obs market.Observation) error
	InsertAlert(ctx context.Context, alert market.Alert) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PGArchive stores observations and alerts in PostgreSQL.
type PGArchive struct {
	pool *pgxpool.Pool
}

// NewPGArchive wires a pgx pool into a PGArchive.
func NewPGArchive(pool *pgxpool.Pool) *PGArchive {
	return &PGArchive{pool: pool}
}

// Close releases the underlying pool resources.
func (a *PGArchive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

func (a *PGArchive) getPool() (*pgxpool.Pool, error) {
	if a == nil || a.pool == nil {
		return nil, ErrNotConfigured
	}
	return a.pool, nil
}

// EnsureSchema creates the archive tables when missing.
func (a *PGArchive) EnsureSchema(ctx context.Context) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (a *PGArchive) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertObservation archives a single price reading.
func (a *PGArchive) InsertObservation(ctx context.Context, obs market.Observation) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertObservationSQL, obs.Token, obs.Price.String(), obs.Timestamp); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// InsertAlert archives an alert; re-inserting the same ID is a no-op.
func (a *PGArchive) InsertAlert(ctx context.Context, alert market.Alert) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		int64(alert.Seq),
		alert.Token,
		alert.CurrentPrice.String(),
		alert.PreviousPrice.String(),
		alert.ChangePercent.String(),
		alert.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists the newest archived alerts, newest first.
func (a *PGArchive) ListRecentAlerts(ctx context.Context, limit int) ([]market.Alert, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]market.Alert, 0, limit)
	for rows.Next() {
		var rec market.Alert
		var seq int64
		var currentStr, previousStr, changeStr string
		if err := rows.Scan(&rec.ID, &seq, &rec.Token, &currentStr, &previousStr, &changeStr, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Seq = uint64(seq)

		var convErr error
		if rec.CurrentPrice, convErr = decimal.NewFromString(currentStr); convErr != nil {
			return nil, fmt.Errorf("parse current price: %w", convErr)
		}
		if rec.PreviousPrice, convErr = decimal.NewFromString(previousStr); convErr != nil {
			return nil, fmt.Errorf("parse previous price: %w", convErr)
		}
		if rec.ChangePercent, convErr = decimal.NewFromString(changeStr); convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var (
	_ Archive        = (*PGArchive)(nil)
	_ AdvisoryLocker = (*PGArchive)(nil)
)
