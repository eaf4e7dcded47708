package services

import (
	"context"
	"testing"
	"time"

	"goaltrack/application/ports"
	pkgerrors "goaltrack/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, remote ports.RemoteStore) *Registry {
	t.Helper()
	reg := NewRegistry(t.TempDir(), remote, time.Minute, []string{"pro"}, zap.NewNop())
	t.Cleanup(reg.CloseAll)
	return reg
}

func TestRegistryReusesManagerPerOwner(t *testing.T) {
	reg := newTestRegistry(t, newFakeRemoteStore())

	a, err := reg.Manager(ports.Session{UserID: "owner-a", Plan: "pro"})
	require.NoError(t, err)
	again, err := reg.Manager(ports.Session{UserID: "owner-a", Plan: "pro"})
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := reg.Manager(ports.Session{UserID: "owner-b", Plan: "pro"})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestRegistryRefreshesEligibilityOnPlanChange(t *testing.T) {
	reg := newTestRegistry(t, newFakeRemoteStore())
	ctx := context.Background()

	mgr, err := reg.Manager(ports.Session{UserID: "owner-a", Plan: "free"})
	require.NoError(t, err)
	assert.False(t, mgr.SyncRunning())

	_, err = mgr.BidirectionalSync(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))

	// The session comes back upgraded. The same manager becomes
	// sync-eligible without a restart.
	upgraded, err := reg.Manager(ports.Session{UserID: "owner-a", Plan: "pro"})
	require.NoError(t, err)
	assert.Same(t, mgr, upgraded)
	assert.True(t, upgraded.SyncRunning())

	_, err = upgraded.BidirectionalSync(ctx)
	require.NoError(t, err)

	// A downgrade revokes eligibility on the next request.
	downgraded, err := reg.Manager(ports.Session{UserID: "owner-a", Plan: "free"})
	require.NoError(t, err)
	assert.Same(t, mgr, downgraded)

	_, err = downgraded.BidirectionalSync(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
