package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/persistence"
)

// DefaultAuditCap bounds the audit log of one workspace.
const DefaultAuditCap = 50

// AuditLog is a per-workspace FIFO of audit entries persisted as one document per
// workspace, oldest entry first.
type AuditLog struct {
	mu     sync.Mutex
	kv     persistence.KV
	limit  int
	logger *slog.Logger
}

func NewAuditLog(kv persistence.KV, logger *slog.Logger, limit int) *AuditLog {
	if limit <= 0 {
		limit = DefaultAuditCap
	}

	return &AuditLog{
		kv:     kv,
		limit:  limit,
		logger: logger.With("module", "audit_log"),
	}
}

func (a *AuditLog) load(ctx context.Context, workspaceID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry

	if _, err := a.kv.Load(ctx, persistence.NamespaceAudit, workspaceID, &entries); err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}

	return entries, nil
}

func (a *AuditLog) save(ctx context.Context, workspaceID string, entries []models.AuditEntry) error {
	if err := a.kv.Save(ctx, persistence.NamespaceAudit, workspaceID, entries); err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}

	return nil
}

// Append adds entry to the workspace log, dropping the oldest entries past the cap.
func (a *AuditLog) Append(ctx context.Context, workspaceID string, entry models.AuditEntry) error {
	return a.Put(ctx, Key{WorkspaceID: workspaceID, ID: entry.ID}, entry)
}

// Put replaces the entry with key.ID in place, or appends it when the log has no such
// entry.
func (a *AuditLog) Put(ctx context.Context, key Key, entry models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load(ctx, key.WorkspaceID)
	if err != nil {
		return err
	}

	entry.ID = key.ID

	if i := indexOf(entries, key.ID); i >= 0 {
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}

	if overflow := len(entries) - a.limit; overflow > 0 {
		entries = slices.Delete(entries, 0, overflow)

		a.logger.DebugContext(ctx, "Dropped oldest audit entries", "workspace_id", key.WorkspaceID, "count", overflow)
	}

	return a.save(ctx, key.WorkspaceID, entries)
}

// Get returns the entry with key.ID.
func (a *AuditLog) Get(ctx context.Context, key Key) (models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load(ctx, key.WorkspaceID)
	if err != nil {
		return models.AuditEntry{}, err
	}

	i := indexOf(entries, key.ID)
	if i < 0 {
		return models.AuditEntry{}, ErrNotFound
	}

	return entries[i], nil
}

// Update applies fn to the entry with key.ID and saves the result, all under the
// collection lock. When fn returns an error nothing is saved.
func (a *AuditLog) Update(
	ctx context.Context,
	key Key,
	fn func(*models.AuditEntry) error,
) (models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load(ctx, key.WorkspaceID)
	if err != nil {
		return models.AuditEntry{}, err
	}

	i := indexOf(entries, key.ID)
	if i < 0 {
		return models.AuditEntry{}, ErrNotFound
	}

	entry := entries[i]
	if err := fn(&entry); err != nil {
		return models.AuditEntry{}, err
	}

	entries[i] = entry

	if err := a.save(ctx, key.WorkspaceID, entries); err != nil {
		return models.AuditEntry{}, err
	}

	return entry, nil
}

// Delete removes the entry with key.ID. Deleting a missing entry is not an error.
func (a *AuditLog) Delete(ctx context.Context, key Key) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load(ctx, key.WorkspaceID)
	if err != nil {
		return err
	}

	i := indexOf(entries, key.ID)
	if i < 0 {
		return nil
	}

	return a.save(ctx, key.WorkspaceID, slices.Delete(entries, i, i+1))
}

// List returns at most limit entries, most recent first. A non-positive limit returns
// the whole log.
func (a *AuditLog) List(ctx context.Context, workspaceID string, limit int) ([]models.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	slices.Reverse(entries)

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if entries == nil {
		entries = []models.AuditEntry{}
	}

	return entries, nil
}

// Sweep is a no-op: the cap is enforced on every write.
func (a *AuditLog) Sweep(context.Context) (int, error) {
	return 0, nil
}

func indexOf(entries []models.AuditEntry, id string) int {
	return slices.IndexFunc(entries, func(e models.AuditEntry) bool { return e.ID == id })
}

var _ Collection[models.AuditEntry] = (*AuditLog)(nil)
