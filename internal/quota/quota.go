// Package quota enforces the per-plan daily limit on newly started interviews.
package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openprep/openprep/internal/models"
)

// ErrLimitReached indicates the owner used up today's interviews for their plan.
var ErrLimitReached = errors.New("daily interview limit reached")

type Limiter interface {
	// Consume takes one unit for owner and returns how many remain today (-1 when unlimited).
	Consume(ctx context.Context, owner models.Owner) (remaining int, err error)
	// Release gives back a unit taken by a Consume whose interview was never created.
	Release(ctx context.Context, owner models.Owner) error
}

// Limits maps a plan to its daily allowance. A missing or non-positive entry means unlimited.
type Limits map[models.Plan]int

func (l Limits) For(owner models.Owner) int {
	plan := owner.Plan
	if owner.Anonymous {
		plan = models.PlanGuest
	}
	if plan == "" {
		plan = models.PlanFree
	}
	return l[plan]
}

func dayKey(ownerID string, now time.Time) string {
	return "quota:interviews:" + ownerID + ":" + now.UTC().Format("20060102")
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Unlimited never refuses.
type Unlimited struct{}

func (Unlimited) Consume(context.Context, models.Owner) (int, error) { return -1, nil }
func (Unlimited) Release(context.Context, models.Owner) error        { return nil }

// Memory keeps counters in process; used by tests and single-instance runs.
type Memory struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time
	used   map[string]int
}

func NewMemory(limits Limits, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{limits: limits, now: now, used: make(map[string]int)}
}

func (m *Memory) Consume(ctx context.Context, owner models.Owner) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	limit := m.limits.For(owner)
	if limit <= 0 {
		return -1, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(owner.ID, m.now())
	if m.used[key] >= limit {
		return 0, ErrLimitReached
	}
	m.used[key]++
	return limit - m.used[key], nil
}

func (m *Memory) Release(ctx context.Context, owner models.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.limits.For(owner) <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(owner.ID, m.now())
	if m.used[key] > 0 {
		m.used[key]--
	}
	return nil
}
