package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/warden/pkg/models"
)

const (
	// DefaultPlanTTL is how long a plan may wait for approval.
	DefaultPlanTTL = 15 * time.Minute

	// DefaultPendingCap bounds the number of pending plans across all workspaces.
	DefaultPendingCap = 200
)

// PendingPlans keeps approval-gated plans in memory. Expiry is lazy: expired plans are
// dropped whenever the collection is read, written or swept.
type PendingPlans struct {
	mu     sync.Mutex
	plans  map[Key]*models.Plan
	ttl    time.Duration
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// PendingOption configures PendingPlans.
type PendingOption func(*PendingPlans)

// WithTTL overrides DefaultPlanTTL.
func WithTTL(ttl time.Duration) PendingOption {
	return func(p *PendingPlans) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithCap overrides DefaultPendingCap.
func WithCap(limit int) PendingOption {
	return func(p *PendingPlans) {
		if limit > 0 {
			p.limit = limit
		}
	}
}

// WithPendingClock overrides the time source.
func WithPendingClock(now func() time.Time) PendingOption {
	return func(p *PendingPlans) { p.now = now }
}

func NewPendingPlans(logger *slog.Logger, opts ...PendingOption) *PendingPlans {
	p := &PendingPlans{
		plans:  make(map[Key]*models.Plan),
		ttl:    DefaultPlanTTL,
		limit:  DefaultPendingCap,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("module", "pending_plans"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Get returns the plan stored under key. Expired plans are removed and reported as
// ErrNotFound.
func (p *PendingPlans) Get(_ context.Context, key Key) (*models.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.get(key)
}

// Take removes and returns the plan stored under key. Only one caller can take a plan.
func (p *PendingPlans) Take(_ context.Context, key Key) (*models.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := p.get(key)
	if err != nil {
		return nil, err
	}

	delete(p.plans, key)

	return plan, nil
}

// Put stores plan and evicts the oldest plans while the collection is over its cap.
func (p *PendingPlans) Put(ctx context.Context, key Key, plan *models.Plan) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweep(ctx)
	p.plans[key] = plan

	for len(p.plans) > p.limit {
		oldest := p.oldest()
		delete(p.plans, oldest)

		p.logger.InfoContext(ctx, "Evicted pending plan over capacity",
			"workspace_id", oldest.WorkspaceID, "plan_id", oldest.ID)
	}

	return nil
}

// Delete drops the plan stored under key. Deleting a missing plan is not an error.
func (p *PendingPlans) Delete(_ context.Context, key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.plans, key)

	return nil
}

// Sweep drops every expired plan.
func (p *PendingPlans) Sweep(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sweep(ctx), nil
}

// Len reports the number of stored plans, expired ones included.
func (p *PendingPlans) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.plans)
}

func (p *PendingPlans) get(key Key) (*models.Plan, error) {
	plan, ok := p.plans[key]
	if !ok {
		return nil, ErrNotFound
	}

	if p.expired(plan) {
		delete(p.plans, key)

		return nil, ErrNotFound
	}

	return plan, nil
}

func (p *PendingPlans) expired(plan *models.Plan) bool {
	return !p.now().Before(plan.CreatedAt.Add(p.ttl))
}

func (p *PendingPlans) sweep(ctx context.Context) int {
	removed := 0

	for key, plan := range p.plans {
		if p.expired(plan) {
			delete(p.plans, key)

			removed++
		}
	}

	if removed > 0 {
		p.logger.DebugContext(ctx, "Expired pending plans", "count", removed)
	}

	return removed
}

// oldest returns the key of the plan created first. Ties break on the key so eviction
// is deterministic.
func (p *PendingPlans) oldest() Key {
	var (
		oldestKey  Key
		oldestPlan *models.Plan
	)

	for key, plan := range p.plans {
		if oldestPlan == nil ||
			plan.CreatedAt.Before(oldestPlan.CreatedAt) ||
			(plan.CreatedAt.Equal(oldestPlan.CreatedAt) && key.String() < oldestKey.String()) {
			oldestKey, oldestPlan = key, plan
		}
	}

	return oldestKey
}

var _ Collection[*models.Plan] = (*PendingPlans)(nil)
