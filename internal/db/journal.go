// Package db persists opportunities, execution plans, and recorded
// executions, adapted from the teacher's transaction_recorder.go
// MySQLRecorder: one GORM model per record kind, big.Int fields stored
// as decimal strings, AutoMigrate on construction.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kaelidex/arbengine/pkg/types"
)

// OpportunityRecord is the database model for a discovered
// MultiPathOpportunity, one row per discover() call.
type OpportunityRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	OpportunityID  string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	StartToken     string    `gorm:"type:varchar(42);index;not null"`
	PathCount      int       `gorm:"not null"`
	BudgetUsed     string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	ExpectedProfit string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	Confidence     float64   `gorm:"not null"`
	CreatedAt      time.Time `gorm:"index;not null"`
	ExpiresAt      time.Time `gorm:"not null"`
}

func (OpportunityRecord) TableName() string { return "opportunities" }

// PlanRecord is the database model for a built ExecutionPlan.
type PlanRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	PlanID        string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	OpportunityID string    `gorm:"type:varchar(64);index;not null"`
	Strategy      string    `gorm:"type:varchar(16);not null"`
	StepCount     int       `gorm:"not null"`
	GasTotal      uint64    `gorm:"not null"`
	PriorityFee   string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	HasFallback   bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (PlanRecord) TableName() string { return "execution_plans" }

// ExecutionRecord is the database model for a recorded execution outcome.
// The engine's §4.5/§4.7 historical corrections keep their own in-memory
// windows and do not read these rows.
type ExecutionRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	PathID            string    `gorm:"type:varchar(64);index;not null"`
	Success           bool      `gorm:"not null"`
	ObservedSlippage  float64   `gorm:"not null"`
	GasUsed           uint64    `gorm:"not null"`
	RecordedAt        time.Time `gorm:"autoCreateTime"`
}

func (ExecutionRecord) TableName() string { return "executions" }

// Journal persists every pipeline stage named in §6 behind a single
// GORM connection, mirroring MySQLRecorder's constructor and migration
// pattern.
type Journal struct {
	db *gorm.DB
}

// Open connects to dsn ("user:password@tcp(host:port)/dbname?parseTime=True")
// and migrates the journal schema.
func Open(dsn string) (*Journal, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return openWithDB(db)
}

// OpenWithDB wraps an existing *gorm.DB, migrating the journal schema.
func OpenWithDB(db *gorm.DB) (*Journal, error) {
	return openWithDB(db)
}

func openWithDB(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&OpportunityRecord{}, &PlanRecord{}, &ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// RecordOpportunity persists a discovered opportunity.
func (j *Journal) RecordOpportunity(opp *types.MultiPathOpportunity) error {
	record := OpportunityRecord{
		OpportunityID:  opp.ID,
		StartToken:     opp.StartToken.Address.Hex(),
		PathCount:      len(opp.Paths),
		BudgetUsed:     bigIntToString(opp.BudgetUsed),
		ExpectedProfit: bigIntToString(opp.ExpectedProfit),
		Confidence:     opp.Confidence,
		CreatedAt:      opp.CreatedAt,
		ExpiresAt:      opp.ExpiresAt,
	}
	if result := j.db.Create(&record); result.Error != nil {
		return fmt.Errorf("record opportunity: %w", result.Error)
	}
	return nil
}

// RecordPlan persists a built execution plan.
func (j *Journal) RecordPlan(opportunityID string, plan *types.ExecutionPlan) error {
	priorityFee := "0"
	if plan.PriorityFee != nil {
		priorityFee = plan.PriorityFee.String()
	}
	record := PlanRecord{
		PlanID:        plan.ID,
		OpportunityID: opportunityID,
		Strategy:      plan.Strategy.String(),
		StepCount:     len(plan.Steps),
		GasTotal:      plan.GasTotal,
		PriorityFee:   priorityFee,
		HasFallback:   plan.Fallback != nil,
	}
	if result := j.db.Create(&record); result.Error != nil {
		return fmt.Errorf("record plan: %w", result.Error)
	}
	return nil
}

// RecordExecution persists an execution outcome.
func (j *Journal) RecordExecution(pathID string, success bool, observedSlippage float64, gasUsed uint64) error {
	record := ExecutionRecord{
		PathID:           pathID,
		Success:          success,
		ObservedSlippage: observedSlippage,
		GasUsed:          gasUsed,
	}
	if result := j.db.Create(&record); result.Error != nil {
		return fmt.Errorf("record execution: %w", result.Error)
	}
	return nil
}

// SuccessRate computes the rolling success rate for pathID over its most
// recent window executions. C7's history_score does not call it; the
// ranker reads the engine's in-memory success tracker instead.
func (j *Journal) SuccessRate(pathID string, window int) (float64, bool, error) {
	var records []ExecutionRecord
	result := j.db.Where("path_id = ?", pathID).
		Order("recorded_at DESC").
		Limit(window).
		Find(&records)
	if result.Error != nil {
		return 0, false, fmt.Errorf("query success rate: %w", result.Error)
	}
	if len(records) == 0 {
		return 0, false, nil
	}
	successes := 0
	for _, r := range records {
		if r.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(records)), true, nil
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
