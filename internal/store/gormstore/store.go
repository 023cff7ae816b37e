// Package gormstore stores imported policies through gorm. SQLite is used for
// local runs and tests; the postgres dialector is available for deployments
// that standardise on gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PolicyRecord is the gorm model of the policies table.
type PolicyRecord struct {
	ID                   string              `gorm:"type:varchar(36);primaryKey"`
	PolicyNumber         string              `gorm:"type:varchar(255);not null;uniqueIndex"`
	PolicyType           string              `gorm:"type:varchar(100)"`
	InsurerName          string              `gorm:"type:varchar(255);not null"`
	ProductName          string              `gorm:"type:varchar(255)"`
	ProductCode          string              `gorm:"type:varchar(100)"`
	PolicyholderName     string              `gorm:"type:varchar(255);not null"`
	InsuredName          string              `gorm:"type:varchar(255)"`
	StartDate            time.Time           `gorm:"not null"`
	ExpiryDate           time.Time           `gorm:"not null"`
	Premium              decimal.Decimal     `gorm:"type:decimal(20,4);not null"`
	Currency             string              `gorm:"type:varchar(3);not null"`
	PaymentFrequency     string              `gorm:"type:varchar(50)"`
	CommissionPercentage decimal.NullDecimal `gorm:"type:decimal(9,4)"`
	Notes                string              `gorm:"type:text"`
	Status               string              `gorm:"type:varchar(20);not null;default:draft;index"`
	SourceRow            int
	CreatedAt            time.Time `gorm:"autoCreateTime"`
}

// TableName keeps the table name shared with the pgx store.
func (PolicyRecord) TableName() string {
	return "policies"
}

// BeforeCreate assigns a UUID when none is set.
func (r *PolicyRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Store creates policies through a gorm connection.
type Store struct {
	db *gorm.DB
}

var _ core.PolicyCreator = (*Store)(nil)

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
// Use "file::memory:?cache=shared" for an in-memory database.
func OpenSQLite(path string) (*Store, error) {
	return open(sqlite.Open(path), "sqlite")
}

// OpenPostgres opens a PostgreSQL database through gorm and migrates it.
func OpenPostgres(dsn string) (*Store, error) {
	return open(postgres.Open(dsn), "postgres")
}

func open(dialector gorm.Dialector, name string) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(
			slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}

	slog.Info("policy store ready", "driver", name)
	return s, nil
}

// New wraps an open gorm connection without migrating it.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the policies table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&PolicyRecord{}); err != nil {
		return fmt.Errorf("migrate policies table: %w", err)
	}
	return nil
}

// CreatePolicy inserts one policy and returns its id.
func (s *Store) CreatePolicy(ctx context.Context, p core.Policy) (string, error) {
	rec := fromPolicy(p)

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return "", fmt.Errorf("insert policy %s: %w", p.PolicyNumber, core.ErrDuplicatePolicy)
		}
		return "", fmt.Errorf("insert policy %s: %w", p.PolicyNumber, err)
	}
	return rec.ID, nil
}

// ListByStatus returns policies with status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]PolicyRecord, error) {
	var out []PolicyRecord
	q := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at, source_row")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return out, nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromPolicy(p core.Policy) PolicyRecord {
	status := p.Status
	if status == "" {
		status = core.PolicyStatusDraft
	}
	return PolicyRecord{
		PolicyNumber:         p.PolicyNumber,
		PolicyType:           p.PolicyType,
		InsurerName:          p.InsurerName,
		ProductName:          p.ProductName,
		ProductCode:          p.ProductCode,
		PolicyholderName:     p.PolicyholderName,
		InsuredName:          p.InsuredName,
		StartDate:            p.StartDate,
		ExpiryDate:           p.ExpiryDate,
		Premium:              p.Premium,
		Currency:             p.Currency,
		PaymentFrequency:     p.PaymentFrequency,
		CommissionPercentage: p.CommissionPercentage,
		Notes:                p.Notes,
		Status:               status,
		SourceRow:            p.SourceRow,
	}
}

// isDuplicate recognises unique violations from drivers that do not
// translate them.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
