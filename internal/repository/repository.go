// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers. It doubles as the
// time-indexed store behind the feature extractor's aggregate queries.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, type, source_account_id, dest_account_id,
			amount, currency, country, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.Type,
		tx.SourceAccountID, tx.DestAccountID,
		tx.Amount, tx.Currency, tx.Country,
		tx.CreatedAt, string(metadata),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, type, source_account_id, dest_account_id,
		       amount, currency, country, created_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.Type,
		&tx.SourceAccountID, &tx.DestAccountID,
		&tx.Amount, &tx.Currency, &tx.Country,
		&tx.CreatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// CountInWindow returns the number of transactions originated by the account
// in [start, end).
func (r *SQLRepository) CountInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND source_account_id = ?
		  AND created_at >= ? AND created_at < ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SumAmountInWindow returns the total amount originated by the account in
// [start, end).
func (r *SQLRepository) SumAmountInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE tenant_id = ? AND source_account_id = ?
		  AND created_at >= ? AND created_at < ?
	`

	var sum float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum amounts: %w", err)
	}
	return sum, nil
}

// VarianceInWindow returns the population variance of the account's amounts
// in [start, end). Computed from sums so the same query works on both drivers.
func (r *SQLRepository) VarianceInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(amount * amount), 0)
		FROM transactions
		WHERE tenant_id = ? AND source_account_id = ?
		  AND created_at >= ? AND created_at < ?
	`

	var n int64
	var sum, sumSq float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&n, &sum, &sumSq)
	if err != nil {
		return 0, fmt.Errorf("failed to compute variance: %w", err)
	}

	if n < 2 {
		return 0, nil
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		// Floating point noise near zero
		variance = 0
	}
	return variance, nil
}

// DistinctMerchantsInWindow returns the number of distinct destination
// accounts the account paid in [start, end).
func (r *SQLRepository) DistinctMerchantsInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(DISTINCT dest_account_id) FROM transactions
		WHERE tenant_id = ? AND source_account_id = ?
		  AND created_at >= ? AND created_at < ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count merchants: %w", err)
	}
	return count, nil
}

// DistinctCountriesInWindow returns the number of distinct origin countries
// on the account's transactions in [start, end). Transactions without
// geolocation are not counted.
func (r *SQLRepository) DistinctCountriesInWindow(ctx context.Context, tenantID, accountID string, start, end time.Time) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(DISTINCT country) FROM transactions
		WHERE tenant_id = ? AND source_account_id = ?
		  AND country <> ''
		  AND created_at >= ? AND created_at < ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count countries: %w", err)
	}
	return count, nil
}

// NetworkRiskScore returns the fraction of the account's distinct
// counterparties in [start, end) that appear in at least one alerted
// transaction, as either source or destination.
func (r *SQLRepository) NetworkRiskScore(ctx context.Context, tenantID, accountID string, start, end time.Time) (float64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("%w: tenantID and accountID are required", domain.ErrInvalidInput)
	}

	total, err := r.DistinctMerchantsInWindow(ctx, tenantID, accountID, start, end)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(DISTINCT t.dest_account_id)
		FROM transactions t
		WHERE t.tenant_id = ? AND t.source_account_id = ?
		  AND t.created_at >= ? AND t.created_at < ?
		  AND EXISTS (
			SELECT 1
			FROM alerts a
			JOIN transactions t2 ON t2.tenant_id = a.tenant_id AND t2.id = a.tx_id
			WHERE a.tenant_id = t.tenant_id
			  AND (t2.source_account_id = t.dest_account_id OR t2.dest_account_id = t.dest_account_id)
		  )
	`

	var flagged int64
	err = r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, start, end).Scan(&flagged)
	if err != nil {
		return 0, fmt.Errorf("failed to compute network risk: %w", err)
	}

	return float64(flagged) / float64(total), nil
}

// SaveAlert stores an alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, tx_id, type, score, level, status,
			notes, resolved_by, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.TxID, alert.Type,
		alert.Score, alert.Level, alert.Status,
		alert.Notes, alert.ResolvedBy,
		alert.CreatedAt, alert.ResolvedAt,
	)
	return err
}

// GetAlert retrieves an alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, type, score, level, status,
		       notes, resolved_by, created_at, resolved_at
		FROM alerts
		WHERE tenant_id = ? AND id = ?
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

// ListAlertsByStatus retrieves alerts in a given state, newest first.
func (r *SQLRepository) ListAlertsByStatus(ctx context.Context, tenantID string, status domain.AlertStatus) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, type, score, level, status,
		       notes, resolved_by, created_at, resolved_at
		FROM alerts
		WHERE tenant_id = ? AND status = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// UpdateAlert persists the resolution state of an alert.
func (r *SQLRepository) UpdateAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET status = ?, notes = ?, resolved_by = ?, resolved_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.Status, alert.Notes, alert.ResolvedBy, alert.ResolvedAt,
		tenantID, alert.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.Alert, error) {
	var alert domain.Alert
	var resolvedAt sql.NullTime

	err := s.Scan(
		&alert.ID, &alert.TenantID, &alert.TxID, &alert.Type,
		&alert.Score, &alert.Level, &alert.Status,
		&alert.Notes, &alert.ResolvedBy,
		&alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}
	return &alert, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
