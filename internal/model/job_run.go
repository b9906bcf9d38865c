package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobType names a recurring background job.
type JobType string

const (
	JobExpenseReminder JobType = "expense_reminder"
	JobPlannerSync     JobType = "planner_sync"
)

// Job run statuses. A run is created as running and closed exactly once.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Trigger origins for a job run.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerCatchup   = "catchup"
)

// RunSummary holds the per-outcome counts of a job run, stored as jsonb.
type RunSummary struct {
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Reason  string `json:"reason,omitempty"`
}

// Value implements driver.Valuer so gorm can persist the summary as jsonb.
func (s RunSummary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *RunSummary) Scan(value interface{}) error {
	if value == nil {
		*s = RunSummary{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for RunSummary")
	}
}

// ScheduledJobRun is one audited execution of a background job. TenantID is
// nil for system-wide sweeps. Rows are append-only: never mutated after the
// run is closed.
type ScheduledJobRun struct {
	RunID             string     `json:"run_id" gorm:"type:varchar(36);primaryKey"`
	TenantID          *uint      `json:"tenant_id,omitempty" gorm:"index"`
	JobType           JobType    `json:"job_type" gorm:"type:varchar(50);index;not null"`
	Status            string     `json:"status" gorm:"type:varchar(20);not null"`
	TriggeredBy       string     `json:"triggered_by" gorm:"type:varchar(20);not null"`
	TriggeredByUserID *uint      `json:"triggered_by_user_id,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ResultSummary     RunSummary `json:"result_summary" gorm:"type:jsonb"`
	ErrorMessage      string     `json:"error_message,omitempty" gorm:"type:text"`
}
