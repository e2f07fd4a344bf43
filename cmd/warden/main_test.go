package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/warden/pkg/mocks"
	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/otelhelper"
	"github.com/dukex/warden/pkg/persistence/file"
	"github.com/dukex/warden/pkg/services"
	"github.com/dukex/warden/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const policyFile = `
workspaces:
  guild-1:
    enabled: true
    require_approval: true
    max_actions_per_run: 8
    allowed_action_types: [create_channel, lock_channel]
`

func testEngine(t *testing.T) *services.Engine {
	t.Helper()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return newEngine(testutil.NewWorkspace(), file.NewPersistence(t.TempDir()), bus,
		otelhelper.NoopTracer(), testutil.Logger(), testutil.AgentID, time.Minute)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := NewRootCommand()
	root.Writer = &out

	err := root.Run(t.Context(), append([]string{"warden"}, args...))

	return out.String(), err
}

func TestAPI_App(t *testing.T) {
	app := NewAPI(testutil.Logger(), testEngine(t)).App()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/", wantStatus: http.StatusOK, wantBody: "Warden API"},
		{path: "/livez", wantStatus: http.StatusOK},
		{path: "/readyz", wantStatus: http.StatusOK},
		{path: "/health", wantStatus: http.StatusOK, wantBody: `"status":"healthy"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(body), tt.wantBody)
		})
	}
}

func TestValidatePolicyCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyFile), 0o600))

	out, err := run(t, "validate-policy", "--policy-file", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Policy Validation Results:")
	assert.Contains(t, out, "guild-1: enabled=true approval=true max_actions=8 allowed=[create_channel, lock_channel]")

	_, err = run(t, "validate-policy", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "parse", "lock", "announcements,", "delete", "channel", "general-archive")
	require.NoError(t, err)

	var got preview
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	require.Len(t, got.Parsed.Actions, 2)
	assert.Equal(t, models.ActionLockChannel, got.Parsed.Actions[0].Type)
	assert.Equal(t, []models.ActionType{models.ActionDeleteChannel}, got.Validation.BlockedTypes)

	_, err = run(t, "parse")
	require.ErrorIs(t, err, ErrNoRequestText)
}

func TestApplyPolicies(t *testing.T) {
	engine := testEngine(t)

	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyFile), 0o600))

	require.NoError(t, applyPolicies(t.Context(), engine, path, testutil.Logger()))

	pol, err := engine.GetPolicy(t.Context(), testutil.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, 8, pol.MaxActionsPerRun)
	assert.Equal(t, []models.ActionType{models.ActionCreateChannel, models.ActionLockChannel}, pol.AllowedActionTypes)
}

func TestStartSweeper_InvalidSchedule(t *testing.T) {
	_, err := startSweeper(t.Context(), testEngine(t), "every now and then", testutil.Logger())
	assert.ErrorContains(t, err, "invalid sweep schedule")

	c, err := startSweeper(t.Context(), testEngine(t), "@every 1h", testutil.Logger())
	require.NoError(t, err)
	c.Stop()
}

func TestSubscribeActivityLog(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(nil)

	require.NoError(t, subscribeActivityLog(t.Context(), bus, testutil.Logger()))
	bus.AssertNumberOfCalls(t, "Handle", 4)
	bus.AssertCalled(t, "Subscribe", mock.Anything)

	failing := &mocks.MockEventBus{}
	failing.On("Handle", mock.Anything, mock.Anything).Return(errors.New("closed"))

	require.Error(t, subscribeActivityLog(t.Context(), failing, testutil.Logger()))
	failing.AssertNotCalled(t, "Subscribe", mock.Anything)
}
