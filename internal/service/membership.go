package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/repository"
)

type MembershipService struct {
	store repository.Store
	now   func() time.Time
}

func NewMembershipService(store repository.Store) *MembershipService {
	return &MembershipService{store: store, now: time.Now}
}

// activateInTx grants one month of the purchased plan. A window that is still
// running is extended from its current end.
func (s *MembershipService) activateInTx(ctx context.Context, q repository.Querier, tx domain.PaymentTransaction, at time.Time) (domain.MembershipWindow, error) {
	if tx.CustomerID == nil || tx.Plan == nil {
		return domain.MembershipWindow{}, fmt.Errorf("membership transaction %s without customer or plan: %w", tx.ReferenceCode, domain.ErrValidation)
	}

	w, err := q.GetMembershipWindowForUpdate(ctx, *tx.CustomerID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		w = domain.MembershipWindow{CustomerID: *tx.CustomerID}
	case err != nil:
		return domain.MembershipWindow{}, fmt.Errorf("lock membership: %w", err)
	}

	if !w.IsActive(at) || w.Plan != *tx.Plan {
		w.StartsAt = at
	}
	w.EndsAt = w.Extend(*tx.Plan, at)
	w.Plan = *tx.Plan
	w.Price = tx.Amount
	w.Status = domain.WindowStatusActive
	w.ReferenceCode = tx.ReferenceCode

	return q.UpsertMembershipWindow(ctx, w)
}

func (s *MembershipService) Current(ctx context.Context, customerID int64) (domain.MembershipWindow, error) {
	w, err := s.store.GetMembershipWindow(ctx, customerID)
	if err != nil {
		return domain.MembershipWindow{}, err
	}
	if w.Status == domain.WindowStatusActive && !w.IsActive(s.now()) {
		w.Status = domain.WindowStatusExpired
	}
	return w, nil
}

// Expire marks lapsed windows.
func (s *MembershipService) Expire(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireMembershipWindows(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	if n > 0 {
		slog.Info("memberships expired", "count", n)
	}
	return n, nil
}
