// Package postgres stores imported policies in PostgreSQL through a pgx
// connection pool. The schema is managed by embedded goose migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store creates policies in the policies table.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.PolicyCreator = (*Store)(nil)

// Open connects a pool using the database settings and verifies it with a
// ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const insertPolicy = `
	INSERT INTO policies (
		policy_number, policy_type, insurer_name, product_name, product_code,
		policyholder_name, insured_name, start_date, expiry_date, premium,
		currency, payment_frequency, commission_percentage, notes, status, source_row
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id`

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// CreatePolicy inserts one policy and returns its id. A taken policy
// number fails with core.ErrDuplicatePolicy.
func (s *Store) CreatePolicy(ctx context.Context, p core.Policy) (string, error) {
	status := p.Status
	if status == "" {
		status = core.PolicyStatusDraft
	}

	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, insertPolicy,
		p.PolicyNumber,
		toPgText(p.PolicyType),
		p.InsurerName,
		toPgText(p.ProductName),
		toPgText(p.ProductCode),
		p.PolicyholderName,
		toPgText(p.InsuredName),
		toPgDate(p.StartDate),
		toPgDate(p.ExpiryDate),
		toPgNumeric(p.Premium),
		p.Currency,
		toPgText(p.PaymentFrequency),
		toPgNullNumeric(p.CommissionPercentage),
		toPgText(p.Notes),
		status,
		toPgInt4(p.SourceRow),
	).Scan(&id)
	if err != nil {
		return "", insertError(p.PolicyNumber, err)
	}

	return uuidString(id), nil
}

func insertError(policyNumber string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert policy %s: %w (%s)", policyNumber, core.ErrDuplicatePolicy, pgErr.ConstraintName)
	}
	return fmt.Errorf("insert policy %s: %w", policyNumber, err)
}

// CountByStatus returns the number of policies with the given status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM policies WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count policies: %w", err)
	}
	return n, nil
}
