package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
//
// The unique index on txn_key (see migrations/) is the authoritative
// idempotency guard: concurrent ingests of the same key race to insert and
// the loser's row is dropped by ON CONFLICT DO NOTHING.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

const selectColumns = `id, txn_key, account_id, amount, currency, merchant, category, ts, metadata, anomaly_score, is_anomaly, anomaly_reason, created_at`

func (p *PostgresStore) Create(ctx context.Context, txns []*Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range txns {
		metadata, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", t.Key, err)
		}

		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions
				(id, txn_key, account_id, amount, currency, merchant, category, ts, metadata, anomaly_score, is_anomaly, anomaly_reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13)
			ON CONFLICT (txn_key) DO NOTHING
		`, t.ID, t.Key, t.AccountID, t.Amount, t.Currency, t.Merchant, t.Category,
			t.Timestamp, metadata, t.AnomalyScore, t.IsAnomaly, t.AnomalyReason, createdAt)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByKey(ctx context.Context, key string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE txn_key = $1`, key)
	return scanTransaction(row)
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) UpdateScores(ctx context.Context, txns []*Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range txns {
		result, err := tx.ExecContext(ctx, `
			UPDATE transactions SET anomaly_score = $1, is_anomaly = $2 WHERE id = $3
		`, t.AnomalyScore, t.IsAnomaly, t.ID)
		if err != nil {
			return fmt.Errorf("update score for %s: %w", t.ID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit score updates: %w", err)
	}
	return nil
}

func (p *PostgresStore) SetReason(ctx context.Context, id, reason string) error {
	// Guarded update: a reason is never overwritten and never attached to an
	// unflagged record. Zero rows affected is a legitimate no-op.
	_, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET anomaly_reason = $1
		WHERE id = $2 AND is_anomaly AND anomaly_reason IS NULL
	`, reason, id)
	if err != nil {
		return fmt.Errorf("set reason for %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, q Query) ([]*Transaction, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.AccountID != "" {
		where = append(where, "account_id = "+arg(q.AccountID))
	}
	if q.MinScore != nil {
		where = append(where, "anomaly_score >= "+arg(*q.MinScore))
	}
	if q.OnlyAnomalies {
		where = append(where, "is_anomaly")
	}
	if q.From != nil {
		where = append(where, "ts >= "+arg(*q.From))
	}
	if q.To != nil {
		where = append(where, "ts <= "+arg(*q.To))
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.OrderBy == OrderByScore {
		query += " ORDER BY anomaly_score DESC, id"
	} else {
		query += " ORDER BY ts DESC, id"
	}
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		query += " OFFSET " + arg(q.Offset)
	}

	return p.queryTransactions(ctx, query, args...)
}

func (p *PostgresStore) ListByTimeRange(ctx context.Context, from, to *time.Time) ([]*Transaction, error) {
	var (
		where []string
		args  []any
	)
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("ts <= $%d", len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, id"

	return p.queryTransactions(ctx, query, args...)
}

func (p *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{UpdatedAt: time.Now().UTC()}
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_anomaly),
		       COUNT(DISTINCT account_id),
		       COALESCE(MAX(anomaly_score), 0)
		FROM transactions
	`).Scan(&stats.TotalTransactions, &stats.TotalAnomalies, &stats.TotalAccounts, &stats.MaxAnomalyScore)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func (p *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	var (
		t        Transaction
		metadata []byte
		reason   sql.NullString
	)
	err := s.Scan(&t.ID, &t.Key, &t.AccountID, &t.Amount, &t.Currency, &t.Merchant,
		&t.Category, &t.Timestamp, &metadata, &t.AnomalyScore, &t.IsAnomaly, &reason, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if reason.Valid {
		t.AnomalyReason = reason.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			slog.Warn("failed to unmarshal transaction metadata", "id", t.ID, "error", err)
		}
	}
	return &t, nil
}
