package tenancy

import (
	"context"
	"fmt"
	"time"

	"tenancy-service/internal/model"
)

// DefaultRole is the least-privileged role given to memberships created
// without an explicit role.
const DefaultRole = "member"

// Ledger tracks active/suspended tenant memberships.
type Ledger struct {
	store Store
}

// NewLedger creates a membership ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// EnsureMembership guarantees an active membership row for (userID, tenantID).
// Safe to call on every login: a missing row is inserted with joined_at=now,
// a suspended row is reactivated without altering role or joined_at, and an
// active row is left untouched. The underlying upsert is atomic, so
// concurrent logins for the same user cannot create duplicate rows.
func (l *Ledger) EnsureMembership(ctx context.Context, userID, tenantID uint, role string) error {
	if role == "" {
		role = DefaultRole
	}

	m := &model.TenantMembership{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Status:   model.MembershipActive,
		JoinedAt: time.Now().UTC(),
	}
	if err := l.store.UpsertMembership(ctx, m); err != nil {
		return fmt.Errorf("ensure membership for user %d in tenant %d: %w", userID, tenantID, err)
	}
	return nil
}
