package store_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/persistence/file"
	"github.com/dukex/warden/pkg/store"
	"github.com/dukex/warden/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, status models.AuditStatus) models.AuditEntry {
	return models.AuditEntry{
		ID:          id,
		PlanID:      "plan_" + id,
		RequestText: "create channel " + id,
		Status:      status,
		Risk:        models.RiskLow,
		CreatedBy:   testutil.AliceID,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuditLog_AppendList(t *testing.T) {
	audit := store.NewAuditLog(file.NewPersistence(t.TempDir()), testutil.Logger(), 0)

	entries, err := audit.List(t.Context(), testutil.WorkspaceID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)

	for _, id := range []string{"run_1", "run_2", "run_3"} {
		require.NoError(t, audit.Append(t.Context(), testutil.WorkspaceID, entry(id, models.AuditSuccess)))
	}

	entries, err = audit.List(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "run_3", entries[0].ID, "most recent first")
	assert.Equal(t, "run_1", entries[2].ID)

	entries, err = audit.List(t.Context(), testutil.WorkspaceID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run_3", entries[0].ID)
	assert.Equal(t, "run_2", entries[1].ID)

	other, err := audit.List(t.Context(), "other-workspace", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAuditLog_BoundedEviction(t *testing.T) {
	const limit = 5

	audit := store.NewAuditLog(file.NewPersistence(t.TempDir()), testutil.Logger(), limit)

	for i := range 12 {
		require.NoError(t, audit.Append(t.Context(), testutil.WorkspaceID, entry(fmt.Sprintf("run_%02d", i), models.AuditSuccess)))

		entries, err := audit.List(t.Context(), testutil.WorkspaceID, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(entries), limit)
	}

	entries, err := audit.List(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	require.Len(t, entries, limit)

	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("run_%02d", 11-i), e.ID)
	}

	_, err = audit.Get(t.Context(), key("run_06"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditLog_GetUpdate(t *testing.T) {
	audit := store.NewAuditLog(file.NewPersistence(t.TempDir()), testutil.Logger(), 0)
	require.NoError(t, audit.Append(t.Context(), testutil.WorkspaceID, entry("run_1", models.AuditSuccess)))

	got, err := audit.Get(t.Context(), key("run_1"))
	require.NoError(t, err)
	assert.Nil(t, got.RollbackStatus)

	status := models.RollbackStatusManualPrefix + "2025-06-01T12:00:00Z"
	updated, err := audit.Update(t.Context(), key("run_1"), func(e *models.AuditEntry) error {
		e.RollbackStatus = &status

		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, updated.RollbackStatus)

	refused := errors.New("already rolled back")
	_, err = audit.Update(t.Context(), key("run_1"), func(e *models.AuditEntry) error {
		if e.RollbackStatus != nil {
			return refused
		}

		return nil
	})
	require.ErrorIs(t, err, refused)

	got, err = audit.Get(t.Context(), key("run_1"))
	require.NoError(t, err)
	require.NotNil(t, got.RollbackStatus)
	assert.Equal(t, status, *got.RollbackStatus)

	_, err = audit.Update(t.Context(), key("run_missing"), func(*models.AuditEntry) error { return nil })
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditLog_PutReplacesInPlace(t *testing.T) {
	audit := store.NewAuditLog(file.NewPersistence(t.TempDir()), testutil.Logger(), 0)

	require.NoError(t, audit.Append(t.Context(), testutil.WorkspaceID, entry("run_1", models.AuditSuccess)))
	require.NoError(t, audit.Append(t.Context(), testutil.WorkspaceID, entry("run_2", models.AuditSuccess)))
	require.NoError(t, audit.Put(t.Context(), key("run_1"), entry("run_1", models.AuditFailed)))

	entries, err := audit.List(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run_2", entries[0].ID, "replacing keeps the original position")
	assert.Equal(t, models.AuditFailed, entries[1].Status)

	require.NoError(t, audit.Delete(t.Context(), key("run_2")))
	require.NoError(t, audit.Delete(t.Context(), key("run_2")))

	entries, err = audit.List(t.Context(), testutil.WorkspaceID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
