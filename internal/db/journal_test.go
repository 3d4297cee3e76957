package db

import (
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/kaelidex/arbengine/pkg/types"
)

func newMockJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Journal{db: gormDB}, mock
}

func TestRecordOpportunity(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `opportunities`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	opp := &types.MultiPathOpportunity{
		ID:             "opp-1",
		StartToken:     types.Token{Address: common.HexToAddress("0x01"), Decimals: 18},
		BudgetUsed:     big.NewInt(1000),
		ExpectedProfit: big.NewInt(50),
		Confidence:     0.9,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Minute),
	}

	require.NoError(t, j.RecordOpportunity(opp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPlan(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `execution_plans`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	plan := &types.ExecutionPlan{
		ID:          "plan-1",
		Strategy:    types.Sequential,
		Steps:       []types.Step{{}},
		GasTotal:    100_000,
		PriorityFee: big.NewInt(2_000_000_000),
	}

	require.NoError(t, j.RecordPlan("opp-1", plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordExecution(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `executions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, j.RecordExecution("path-1", true, 0.002, 100_000))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBigIntToString(t *testing.T) {
	assert.Equal(t, "0", bigIntToString(nil))
	assert.Equal(t, "0", bigIntToString(big.NewInt(0)))
	assert.Equal(t, "123456789", bigIntToString(big.NewInt(123456789)))
}

func TestRecordTableNames(t *testing.T) {
	assert.Equal(t, "opportunities", OpportunityRecord{}.TableName())
	assert.Equal(t, "execution_plans", PlanRecord{}.TableName())
	assert.Equal(t, "executions", ExecutionRecord{}.TableName())
}
