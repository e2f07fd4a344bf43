// Package persistence provides the namespaced key-value storage the engine keeps its
// policies, audit logs and workflow templates in.
package persistence

import (
	"context"
)

// Namespaces used by the engine.
const (
	NamespacePolicy    = "policy"
	NamespaceAudit     = "audit"
	NamespaceWorkflows = "workflows"
)

// KV stores JSON-encodable values by namespace and key.
type KV interface {
	// Load decodes the value stored under namespace/key into out. It reports false
	// when nothing is stored.
	Load(ctx context.Context, namespace, key string, out any) (bool, error)
	Save(ctx context.Context, namespace, key string, value any) error
	Delete(ctx context.Context, namespace, key string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
