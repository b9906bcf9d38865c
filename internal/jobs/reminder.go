// Package jobs holds the concrete background jobs the scheduler runs.
package jobs

import (
	"context"
	"fmt"

	"tenancy-service/internal/model"
	"tenancy-service/internal/scheduler"
)

// Mailer sends one reminder mail. Implemented by the Graph client.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// MemberLister enumerates the active members of a tenant.
type MemberLister interface {
	ListActiveMembers(ctx context.Context, tenantID uint) ([]model.User, error)
}

// ExpenseReminder mails every active member of a tenant a prompt to submit
// their open expenses. One undeliverable address must not stop the rest.
type ExpenseReminder struct {
	members MemberLister
	mailer  Mailer
}

// NewExpenseReminder creates the expense reminder job.
func NewExpenseReminder(members MemberLister, mailer Mailer) *ExpenseReminder {
	return &ExpenseReminder{members: members, mailer: mailer}
}

func (j *ExpenseReminder) Type() model.JobType {
	return model.JobExpenseReminder
}

func (j *ExpenseReminder) Enabled(t *model.Tenant) bool {
	return t.ReminderEnabled
}

func (j *ExpenseReminder) Targets(ctx context.Context, t *model.Tenant) ([]scheduler.Target, error) {
	members, err := j.members.ListActiveMembers(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list members of tenant %d: %w", t.ID, err)
	}

	targets := make([]scheduler.Target, 0, len(members))
	for _, m := range members {
		targets = append(targets, scheduler.Target{ID: m.Email, Name: m.Name})
	}
	return targets, nil
}

func (j *ExpenseReminder) Process(ctx context.Context, t *model.Tenant, target scheduler.Target) error {
	if target.ID == "" {
		return scheduler.ErrSkipTarget
	}

	subject := "Expense reminder"
	body := fmt.Sprintf("Hi %s,\n\nThis is your weekly reminder to submit any open expenses for %s.\n", target.Name, t.Name)
	return j.mailer.SendMail(ctx, target.ID, subject, body)
}
