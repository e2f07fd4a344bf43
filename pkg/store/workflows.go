package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/persistence"
)

const (
	// DefaultWorkflowCap bounds the templates of one workspace.
	DefaultWorkflowCap = 25

	// MaxSlugLength bounds normalized workflow names.
	MaxSlugLength = 32
)

// Slug normalizes a workflow name to lowercase [a-z0-9-], at most MaxSlugLength long.
func Slug(name string) (string, error) {
	var b strings.Builder

	dash := false

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)

			dash = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')

				dash = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}

	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return slug, nil
}

// Workflows stores named request templates per workspace. Saving an existing name
// replaces it; past the cap the least recently updated template is evicted.
type Workflows struct {
	mu     sync.Mutex
	kv     persistence.KV
	limit  int
	logger *slog.Logger
}

func NewWorkflows(kv persistence.KV, logger *slog.Logger, limit int) *Workflows {
	if limit <= 0 {
		limit = DefaultWorkflowCap
	}

	return &Workflows{
		kv:     kv,
		limit:  limit,
		logger: logger.With("module", "workflows"),
	}
}

func (w *Workflows) load(ctx context.Context, workspaceID string) (map[string]models.WorkflowTemplate, error) {
	templates := map[string]models.WorkflowTemplate{}

	if _, err := w.kv.Load(ctx, persistence.NamespaceWorkflows, workspaceID, &templates); err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	return templates, nil
}

func (w *Workflows) save(ctx context.Context, workspaceID string, templates map[string]models.WorkflowTemplate) error {
	if err := w.kv.Save(ctx, persistence.NamespaceWorkflows, workspaceID, templates); err != nil {
		return fmt.Errorf("failed to save workflows: %w", err)
	}

	return nil
}

// Get returns the template named key.ID after normalization.
func (w *Workflows) Get(ctx context.Context, key Key) (models.WorkflowTemplate, error) {
	slug, err := Slug(key.ID)
	if err != nil {
		return models.WorkflowTemplate{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	templates, err := w.load(ctx, key.WorkspaceID)
	if err != nil {
		return models.WorkflowTemplate{}, err
	}

	tmpl, ok := templates[slug]
	if !ok {
		return models.WorkflowTemplate{}, ErrNotFound
	}

	return tmpl, nil
}

// Put creates or replaces the template named key.ID. A replaced template keeps its
// original creator and creation time.
func (w *Workflows) Put(ctx context.Context, key Key, tmpl models.WorkflowTemplate) error {
	slug, err := Slug(key.ID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	templates, err := w.load(ctx, key.WorkspaceID)
	if err != nil {
		return err
	}

	tmpl.Name = slug
	if prior, ok := templates[slug]; ok {
		tmpl.CreatedBy, tmpl.CreatedAt = prior.CreatedBy, prior.CreatedAt
	}

	templates[slug] = tmpl

	for len(templates) > w.limit {
		evict := leastRecentlyUpdated(templates)
		delete(templates, evict)

		w.logger.InfoContext(ctx, "Evicted workflow over capacity", "workspace_id", key.WorkspaceID, "workflow", evict)
	}

	return w.save(ctx, key.WorkspaceID, templates)
}

// Delete removes the template named key.ID, reporting ErrNotFound when absent.
func (w *Workflows) Delete(ctx context.Context, key Key) error {
	slug, err := Slug(key.ID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	templates, err := w.load(ctx, key.WorkspaceID)
	if err != nil {
		return err
	}

	if _, ok := templates[slug]; !ok {
		return ErrNotFound
	}

	delete(templates, slug)

	return w.save(ctx, key.WorkspaceID, templates)
}

// List returns the workspace templates sorted by name.
func (w *Workflows) List(ctx context.Context, workspaceID string) ([]models.WorkflowTemplate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	templates, err := w.load(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]models.WorkflowTemplate, 0, len(templates))
	for _, name := range slices.Sorted(maps.Keys(templates)) {
		out = append(out, templates[name])
	}

	return out, nil
}

// Sweep is a no-op: the cap is enforced on every write.
func (w *Workflows) Sweep(context.Context) (int, error) {
	return 0, nil
}

func leastRecentlyUpdated(templates map[string]models.WorkflowTemplate) string {
	var oldest string

	for _, name := range slices.Sorted(maps.Keys(templates)) {
		if oldest == "" || templates[name].UpdatedAt.Before(templates[oldest].UpdatedAt) {
			oldest = name
		}
	}

	return oldest
}

var _ Collection[models.WorkflowTemplate] = (*Workflows)(nil)
