package gormstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a private in-memory database per test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePolicy(number string) core.Policy {
	return core.Policy{
		PolicyNumber:     number,
		InsurerName:      "Acme",
		PolicyholderName: "Jane Novak",
		StartDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Premium:          decimal.RequireFromString("100.50"),
		Currency:         "EUR",
		SourceRow:        2,
	}
}

func TestStore_CreatePolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePolicy(ctx, samplePolicy("POL1"))
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	drafts, err := s.ListByStatus(ctx, core.PolicyStatusDraft, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, id, drafts[0].ID)
	assert.Equal(t, "POL1", drafts[0].PolicyNumber)
	assert.True(t, decimal.RequireFromString("100.50").Equal(drafts[0].Premium))
	assert.False(t, drafts[0].CommissionPercentage.Valid)
	assert.Equal(t, core.PolicyStatusDraft, drafts[0].Status)
}

func TestStore_DuplicatePolicyNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreatePolicy(ctx, samplePolicy("POL1"))
	require.NoError(t, err)

	_, err = s.CreatePolicy(ctx, samplePolicy("POL1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicatePolicy)
	assert.Equal(t, "DB001", core.MapError(err).Code)
}

func TestStore_DrivesImportSession(t *testing.T) {
	s := newTestStore(t)

	data := []byte("policy_number,insurer_name,policyholder_name,start_date,expiry_date,premium,currency\n" +
		"POL1,Acme,X,2024-01-01,2025-01-01,100,EUR\n" +
		"POL1,Acme,Y,2024-01-01,2025-01-01,200,EUR\n" +
		"POL3,Acme,Z,2024-01-01,2025-01-01,300,EUR\n")

	session := core.NewSession("", core.SessionOptions{})
	require.NoError(t, session.Continue())
	_, err := session.Upload("book.csv", "text/csv", data)
	require.NoError(t, err)
	_, err = session.ConfirmMapping(session.Mapping())
	require.NoError(t, err)
	require.NoError(t, session.Import(context.Background(), s, core.ImportOptions{}))

	report := core.Summarize(session)
	assert.Equal(t, 2, report.CommittedCount)
	assert.Equal(t, 1, report.FailedCommitCount)
	require.Len(t, report.CommitFailures, 1)
	assert.Equal(t, 3, report.CommitFailures[0].Row)
	assert.Equal(t, "DB001", report.CommitFailures[0].Code)
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

// TestStore_Postgres runs against a scratch database named by
// TEST_GORM_DATABASE_URL. It must not hold the goose-managed schema.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_GORM_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_GORM_DATABASE_URL not set")
	}

	s, err := OpenPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	number := "GORM-" + uuid.NewString()
	t.Cleanup(func() {
		s.db.Where("policy_number = ?", number).Delete(&PolicyRecord{})
	})

	_, err = s.CreatePolicy(ctx, samplePolicy(number))
	require.NoError(t, err)

	_, err = s.CreatePolicy(ctx, samplePolicy(number))
	assert.ErrorIs(t, err, core.ErrDuplicatePolicy)
}
