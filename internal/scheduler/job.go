package scheduler

import (
	"context"
	"errors"

	"tenancy-service/internal/model"
)

// ErrSkipTarget can be returned by Job.Process to count a target as skipped
// rather than sent or errored.
var ErrSkipTarget = errors.New("target skipped")

// Target is one unit of work within a tenant's job run. Name is carried for
// log context only.
type Target struct {
	ID   string
	Name string
}

// Job is a named recurring background job. The runner owns audit bracketing,
// counting and partial-failure isolation; implementations only enumerate
// targets and process them one at a time.
type Job interface {
	Type() model.JobType
	// Enabled reports whether the tenant has this job switched on.
	Enabled(t *model.Tenant) bool
	Targets(ctx context.Context, t *model.Tenant) ([]Target, error)
	Process(ctx context.Context, t *model.Tenant, target Target) error
}
