package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertFillAlertSQL = `INSERT INTO fill_alerts (
        order_hash,
        wallet,
        amount_usd,
        outcome,
        condition_id,
        question,
        block_number,
        wallet_age_days,
        age_confidence,
        dedup_key
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (dedup_key) DO NOTHING
    RETURNING id, created_at;`

	listRecentFillAlertsSQL = `SELECT
        id,
        order_hash,
        wallet,
        amount_usd,
        outcome,
        condition_id,
        question,
        block_number,
        wallet_age_days,
        age_confidence,
        dedup_key,
        created_at
    FROM fill_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listFillAlertsBetweenSQL = `SELECT
        id,
        order_hash,
        wallet,
        amount_usd,
        outcome,
        condition_id,
        question,
        block_number,
        wallet_age_days,
        age_confidence,
        dedup_key,
        created_at
    FROM fill_alerts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	deleteFillAlertsBeforeSQL = `DELETE FROM fill_alerts WHERE created_at < $1;`

	countFillAlertsSQL = `SELECT COUNT(*) FROM fill_alerts;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertFillAlert(ctx context.Context, alert FillAlert) (FillAlert, error)
	ListRecentFillAlerts(ctx context.Context, limit int) ([]FillAlert, error)
	ListFillAlertsBetween(ctx context.Context, from, to time.Time) ([]FillAlert, error)
	DeleteFillAlertsBefore(ctx context.Context, olderThan time.Time) error
	CountFillAlerts(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides Postgres-backed alert auditing.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertFillAlert persists an alert emission. A duplicate dedup key leaves
// the existing row untouched and returns it unchanged.
func (s *Store) InsertFillAlert(ctx context.Context, alert FillAlert) (FillAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return FillAlert{}, err
	}

	row := pool.QueryRow(ctx, insertFillAlertSQL,
		alert.OrderHash,
		alert.Wallet,
		alert.Amount.String(),
		alert.Outcome,
		alert.ConditionID,
		alert.Question,
		alert.BlockNumber,
		alert.WalletAgeDays,
		alert.AgeConfidence,
		alert.DedupKey,
	)

	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			// Conflict on dedup_key; nothing inserted.
			return alert, nil
		}
		return FillAlert{}, fmt.Errorf("insert fill alert: %w", scanErr)
	}
	return alert, nil
}

// ListRecentFillAlerts lists most recent alerts.
func (s *Store) ListRecentFillAlerts(ctx context.Context, limit int) ([]FillAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentFillAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent fill alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectFillAlerts(rows, limit)
}

// ListFillAlertsBetween lists alerts within a time window.
func (s *Store) ListFillAlertsBetween(ctx context.Context, from, to time.Time) ([]FillAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFillAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list fill alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectFillAlerts(rows, 0)
}

// DeleteFillAlertsBefore deletes historical alerts.
func (s *Store) DeleteFillAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteFillAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete fill alerts before: %w", execErr)
	}
	return nil
}

// CountFillAlerts counts stored alerts.
func (s *Store) CountFillAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countFillAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count fill alerts: %w", scanErr)
	}
	return count, nil
}

func collectFillAlerts(rows pgx.Rows, capacityHint int) ([]FillAlert, error) {
	alerts := make([]FillAlert, 0, capacityHint)
	for rows.Next() {
		alert, scanErr := scanFillAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanFillAlert(rows pgx.Rows) (FillAlert, error) {
	var (
		alert     FillAlert
		amountStr string
	)

	if err := rows.Scan(
		&alert.ID,
		&alert.OrderHash,
		&alert.Wallet,
		&amountStr,
		&alert.Outcome,
		&alert.ConditionID,
		&alert.Question,
		&alert.BlockNumber,
		&alert.WalletAgeDays,
		&alert.AgeConfidence,
		&alert.DedupKey,
		&alert.CreatedAt,
	); err != nil {
		return FillAlert{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return FillAlert{}, fmt.Errorf("parse alert amount: %w", err)
	}
	alert.Amount = amount

	return alert, nil
}
