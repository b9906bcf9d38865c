package scheduler

import (
	"github.com/robfig/cron/v3"
)

// CronScheduler adapts robfig/cron to the TriggerScheduler interface.
// Timezones are applied per entry via the CRON_TZ prefix, so tenants in
// different timezones share one cron instance.
type CronScheduler struct {
	c *cron.Cron
}

// NewCronScheduler creates and starts the underlying cron runner.
func NewCronScheduler() *CronScheduler {
	c := cron.New()
	c.Start()
	return &CronScheduler{c: c}
}

// Schedule registers fn on the given cron expression in the given timezone.
func (s *CronScheduler) Schedule(spec, timezone string, fn func()) (TriggerHandle, error) {
	expr := spec
	if timezone != "" {
		expr = "CRON_TZ=" + timezone + " " + spec
	}
	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return nil, err
	}
	return &cronHandle{c: s.c, id: id}, nil
}

// Stop halts the cron runner. Entries already firing run to completion.
func (s *CronScheduler) Stop() {
	s.c.Stop()
}

type cronHandle struct {
	c  *cron.Cron
	id cron.EntryID
}

func (h *cronHandle) Cancel() {
	h.c.Remove(h.id)
}
