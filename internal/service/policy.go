package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/shopspring/decimal"
)

// PolicySource hands out the policy in force. Consumers treat the value as
// read-only.
type PolicySource interface {
	Current(ctx context.Context) (domain.Policy, error)
}

// StaticPolicy always returns the same value.
type StaticPolicy domain.Policy

func (p StaticPolicy) Current(context.Context) (domain.Policy, error) {
	return domain.Policy(p), nil
}

type PolicyStore struct {
	store   repository.Store
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	cached   domain.Policy
	loadedAt time.Time
	loaded   bool
}

func NewPolicyStore(store repository.Store, m *metrics.Metrics, ttl time.Duration) *PolicyStore {
	return &PolicyStore{store: store, metrics: m, ttl: ttl, now: time.Now}
}

func (s *PolicyStore) Current(ctx context.Context) (domain.Policy, error) {
	s.mu.RLock()
	if s.loaded && s.now().Sub(s.loadedAt) < s.ttl {
		p := s.cached
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	p, err := s.load(ctx, s.store)
	if err != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.loaded {
			slog.Warn("policy reload failed, serving cached version", "version", s.cached.Version, "error", err)
			return s.cached, nil
		}
		return domain.Policy{}, err
	}
	s.remember(p)
	return p, nil
}

func (s *PolicyStore) load(ctx context.Context, q repository.Querier) (domain.Policy, error) {
	p, err := q.LatestPolicy(ctx)
	if errors.Is(err, domain.ErrPolicyNotFound) {
		return domain.DefaultPolicy(), nil
	}
	if err != nil {
		return domain.Policy{}, fmt.Errorf("load policy: %w", err)
	}
	return p, nil
}

func (s *PolicyStore) remember(p domain.Policy) {
	s.mu.Lock()
	s.cached = p
	s.loadedAt = s.now()
	s.loaded = true
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.PolicyVersion.Set(float64(p.Version))
	}
}

// Update applies mutate to the latest policy and stores the result as a new
// version.
func (s *PolicyStore) Update(ctx context.Context, mutate func(p *domain.Policy) error, actor string) (domain.Policy, error) {
	var stored domain.Policy
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		p, err := s.load(ctx, q)
		if err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		p.UpdatedBy = actor
		stored, err = q.InsertPolicy(ctx, p)
		if err != nil {
			return fmt.Errorf("insert policy: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Policy{}, err
	}

	s.remember(stored)
	slog.Info("policy updated", "version", stored.Version, "by", actor)
	return stored, nil
}

// PolicyFields lists the names accepted by SetField.
var PolicyFields = []string{
	"points_rate",
	"streak_discount_threshold",
	"streak_discount_rate",
	"grace_days",
	"delinquency_days",
	"penalty_rate",
	"reminder_days_before",
}

// SetField changes a single policy parameter given as text.
func (s *PolicyStore) SetField(ctx context.Context, field, value, actor string) (domain.Policy, error) {
	return s.Update(ctx, func(p *domain.Policy) error {
		return setPolicyField(p, field, value)
	}, actor)
}

func setPolicyField(p *domain.Policy, field, value string) error {
	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, domain.NewValidationError(field, "must be a whole number")
		}
		return n, nil
	}
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, domain.NewValidationError(field, "must be true or false")
		}
		return b, nil
	}
	parseRate := func() (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, domain.NewValidationError(field, "must be a decimal number")
		}
		return d, nil
	}

	var err error
	switch field {
	case "points_rate":
		p.PointsRate, err = parseRate()
	case "streak_discount_threshold":
		p.StreakDiscountThreshold, err = parseInt()
	case "streak_discount_rate":
		p.StreakDiscountRate, err = parseRate()
	case "grace_days":
		p.GraceDays, err = parseInt()
	case "delinquency_days":
		p.DelinquencyDays, err = parseInt()
	case "penalty_rate":
		p.PenaltyRate, err = parseRate()
	case "reminder_days_before":
		p.ReminderDaysBefore, err = parseInt()
	case "mute_reminders":
		p.MuteReminders, err = parseBool()
	case "mute_achievements":
		p.MuteAchievements, err = parseBool()
	case "mute_benefits":
		p.MuteBenefits, err = parseBool()
	default:
		return domain.NewValidationError("field", "unknown policy field "+field)
	}
	return err
}
