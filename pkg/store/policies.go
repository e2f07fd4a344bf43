package store

import (
	"context"
	"fmt"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/persistence"
	"github.com/dukex/warden/pkg/policy"
)

// Policies persists one policy per workspace. Workspaces without a stored policy get
// policy.Default.
type Policies struct {
	kv persistence.KV
}

func NewPolicies(kv persistence.KV) *Policies {
	return &Policies{kv: kv}
}

// Get returns the normalized policy of workspaceID.
func (p *Policies) Get(ctx context.Context, workspaceID string) (models.Policy, error) {
	var stored models.Policy

	found, err := p.kv.Load(ctx, persistence.NamespacePolicy, workspaceID, &stored)
	if err != nil {
		return models.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}

	if !found {
		return policy.Default(), nil
	}

	return policy.Normalize(stored), nil
}

// Put normalizes and stores the policy of workspaceID.
func (p *Policies) Put(ctx context.Context, workspaceID string, pol models.Policy) (models.Policy, error) {
	pol = policy.Normalize(pol)

	if err := p.kv.Save(ctx, persistence.NamespacePolicy, workspaceID, pol); err != nil {
		return models.Policy{}, fmt.Errorf("failed to save policy: %w", err)
	}

	return pol, nil
}

// Reset drops the stored policy so the default applies again.
func (p *Policies) Reset(ctx context.Context, workspaceID string) error {
	if err := p.kv.Delete(ctx, persistence.NamespacePolicy, workspaceID); err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	return nil
}
