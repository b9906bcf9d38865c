package scheduler

import (
	"context"
	"errors"
	"testing"

	"tenancy-service/internal/model"
)

type fakeHandle struct {
	cancelled bool
}

func (h *fakeHandle) Cancel() { h.cancelled = true }

type scheduledTrigger struct {
	spec     string
	timezone string
	fn       func()
	handle   *fakeHandle
}

// fakeTriggers records every Schedule call and hands out cancellable handles.
type fakeTriggers struct {
	scheduled []scheduledTrigger
	err       error
}

func (f *fakeTriggers) Schedule(spec, timezone string, fn func()) (TriggerHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{}
	f.scheduled = append(f.scheduled, scheduledTrigger{spec: spec, timezone: timezone, fn: fn, handle: h})
	return h, nil
}

func (f *fakeTriggers) active() int {
	n := 0
	for _, s := range f.scheduled {
		if !s.handle.cancelled {
			n++
		}
	}
	return n
}

func reminderTestJob() *fakeJob {
	return &fakeJob{
		jobType: model.JobExpenseReminder,
		enabled: func(t *model.Tenant) bool { return t.ReminderEnabled },
	}
}

func newTestRegistry(store *fakeSchedStore, triggers *fakeTriggers, job *fakeJob) *Registry {
	runner := NewRunner(store, nil)
	runner.Register(job)
	return NewRegistry(store, runner, triggers, job, nil)
}

func enabledTenant(id uint, hhmm string, day int, tz string) model.Tenant {
	return model.Tenant{
		ID:              id,
		ReminderEnabled: true,
		ReminderTime:    hhmm,
		ReminderDay:     day,
		Timezone:        tz,
		Active:          true,
	}
}

func TestStartAllRegistersEnabledTenants(t *testing.T) {
	store := newFakeSchedStore()
	store.enabled = []model.Tenant{
		enabledTenant(1, "09:00", 1, "UTC"),
		enabledTenant(2, "17:30", 5, "Europe/Berlin"),
	}
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if reg.HandleCount() != 2 {
		t.Fatalf("handles = %d, want 2", reg.HandleCount())
	}
	if triggers.scheduled[0].spec != "0 9 * * 1" {
		t.Fatalf("spec = %q, want %q", triggers.scheduled[0].spec, "0 9 * * 1")
	}
	if triggers.scheduled[1].spec != "30 17 * * 5" || triggers.scheduled[1].timezone != "Europe/Berlin" {
		t.Fatalf("got %q in %q", triggers.scheduled[1].spec, triggers.scheduled[1].timezone)
	}
}

func TestStartAllSkipsInvalidPreferences(t *testing.T) {
	store := newFakeSchedStore()
	store.enabled = []model.Tenant{
		enabledTenant(1, "09:00", 1, "UTC"),
		enabledTenant(2, "not-a-time", 1, "UTC"),
		enabledTenant(3, "23:59", 6, "UTC"),
	}
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("a bad tenant must not block the rest: %v", err)
	}
	if reg.HandleCount() != 2 {
		t.Fatalf("handles = %d, want 2", reg.HandleCount())
	}
}

func TestUpdateForTenantNeverLeavesTwoHandles(t *testing.T) {
	store := newFakeSchedStore()
	tenant := enabledTenant(1, "09:00", 1, "UTC")
	store.tenants[1] = &tenant
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	for i := 0; i < 3; i++ {
		if err := reg.UpdateForTenant(context.Background(), 1); err != nil {
			t.Fatalf("UpdateForTenant: %v", err)
		}
	}

	if reg.HandleCount() != 1 {
		t.Fatalf("handles = %d, want 1", reg.HandleCount())
	}
	if triggers.active() != 1 {
		t.Fatalf("active triggers = %d, want 1 (stale handles must be cancelled)", triggers.active())
	}
}

func TestUpdateForTenantRemovesHandleWhenDisabled(t *testing.T) {
	store := newFakeSchedStore()
	tenant := enabledTenant(1, "09:00", 1, "UTC")
	store.tenants[1] = &tenant
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	if err := reg.UpdateForTenant(context.Background(), 1); err != nil {
		t.Fatalf("UpdateForTenant: %v", err)
	}

	tenant.ReminderEnabled = false
	if err := reg.UpdateForTenant(context.Background(), 1); err != nil {
		t.Fatalf("UpdateForTenant after disable: %v", err)
	}
	if reg.HandleCount() != 0 {
		t.Fatalf("handles = %d, want 0", reg.HandleCount())
	}
	if triggers.active() != 0 {
		t.Fatal("disabled tenant's trigger must be cancelled")
	}
}

func TestUpdateForTenantMissingTenant(t *testing.T) {
	store := newFakeSchedStore()
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	if err := reg.UpdateForTenant(context.Background(), 404); err != nil {
		t.Fatalf("missing tenant must be a no-op: %v", err)
	}
	if reg.HandleCount() != 0 {
		t.Fatalf("handles = %d, want 0", reg.HandleCount())
	}
}

func TestStopAllThenStartAllRebuilds(t *testing.T) {
	store := newFakeSchedStore()
	store.enabled = []model.Tenant{
		enabledTenant(1, "09:00", 1, "UTC"),
		enabledTenant(2, "10:00", 2, "UTC"),
	}
	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, reminderTestJob())

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	reg.StopAll()
	if reg.HandleCount() != 0 || triggers.active() != 0 {
		t.Fatal("StopAll must cancel and clear everything")
	}

	// Tenant 2 dropped out of the enabled set before the restart.
	store.enabled = store.enabled[:1]
	if err := reg.RestartAll(context.Background()); err != nil {
		t.Fatalf("RestartAll: %v", err)
	}
	if reg.HandleCount() != 1 {
		t.Fatalf("handles after restart = %d, want 1", reg.HandleCount())
	}
	if triggers.active() != 1 {
		t.Fatalf("active triggers after restart = %d, want 1", triggers.active())
	}
}

func TestScheduledFireRunsJobAndSwallowsFailure(t *testing.T) {
	store := newFakeSchedStore()
	tenant := enabledTenant(1, "09:00", 1, "UTC")
	store.tenants[1] = &tenant
	store.enabled = []model.Tenant{tenant}

	job := reminderTestJob()
	job.targets = targetsN(1)
	job.verdict = func(Target) error { return errors.New("smtp refused") }

	triggers := &fakeTriggers{}
	reg := newTestRegistry(store, triggers, job)
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	// The trigger fires; the run fails but the error stays inside the audit
	// trail rather than propagating out of the callback.
	triggers.scheduled[0].fn()

	var found *model.ScheduledJobRun
	for _, r := range store.runs {
		found = r
	}
	if found == nil {
		t.Fatal("scheduled fire recorded no run")
	}
	if found.TriggeredBy != model.TriggerScheduled {
		t.Fatalf("triggered_by = %q, want scheduled", found.TriggeredBy)
	}
	if found.Status != model.RunStatusFailed {
		t.Fatalf("status = %q, want failed", found.Status)
	}
}

func TestReminderCronSpec(t *testing.T) {
	cases := []struct {
		hhmm    string
		day     int
		want    string
		wantErr bool
	}{
		{"09:00", 1, "0 9 * * 1", false},
		{"23:59", 6, "59 23 * * 6", false},
		{"00:00", 0, "0 0 * * 0", false},
		{"24:00", 1, "", true},
		{"09:60", 1, "", true},
		{"09:00", 7, "", true},
		{"0900", 1, "", true},
		{"", 1, "", true},
	}
	for _, tc := range cases {
		got, err := reminderCronSpec(tc.hhmm, tc.day)
		if tc.wantErr {
			if err == nil {
				t.Errorf("reminderCronSpec(%q, %d): expected error", tc.hhmm, tc.day)
			}
			continue
		}
		if err != nil {
			t.Errorf("reminderCronSpec(%q, %d): %v", tc.hhmm, tc.day, err)
			continue
		}
		if got != tc.want {
			t.Errorf("reminderCronSpec(%q, %d) = %q, want %q", tc.hhmm, tc.day, got, tc.want)
		}
	}
}
