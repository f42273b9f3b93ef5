package privacy

import (
	"context"
	"testing"

	"kama_realtime/internal/dao/mysql/mysqltest"
	"kama_realtime/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlockedEitherDirection(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	mysqltest.SeedPrivate(t, repos, "P1", "U1", "U2")
	gate := NewPrivacyGate(repos)

	blocked, err := gate.IsBlocked(ctx, "U1", "U2")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, repos.Contact.UpdateFlags(ctx, "U1", "P1", false, true))
	for _, pair := range [][2]string{{"U1", "U2"}, {"U2", "U1"}} {
		blocked, err = gate.IsBlocked(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, blocked)
	}

	blocked, err = gate.IsBlocked(ctx, "U1", "U9")
	require.NoError(t, err)
	assert.False(t, blocked, "no shared conversation means no block")
}

func TestCanRequestChecksBlockBeforeSettings(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	mysqltest.SeedPrivate(t, repos, "P1", "U1", "U2")
	gate := NewPrivacyGate(repos)

	ok, reason, err := gate.CanRequest(ctx, "U1", "U2", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReasonNone, reason)

	settings := model.DefaultPrivacySettings("U1")
	settings.IsInvitableToGroup = false
	require.NoError(t, repos.Privacy.Upsert(ctx, settings))

	ok, reason, err = gate.CanRequest(ctx, "U1", "U2", true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonNotInvitableToGroup, reason)

	ok, _, err = gate.CanRequest(ctx, "U1", "U2", false)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repos.Contact.UpdateFlags(ctx, "U2", "P1", false, true))
	ok, reason, err = gate.CanRequest(ctx, "U1", "U2", false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonBlocked, reason)
}

func TestCanRequestAddFromGroupDisabled(t *testing.T) {
	ctx := context.Background()
	repos := mysqltest.NewRepositories(t)
	settings := model.DefaultPrivacySettings("U5")
	settings.IsAddableFromGroup = false
	require.NoError(t, repos.Privacy.Upsert(ctx, settings))

	ok, reason, err := NewPrivacyGate(repos).CanRequest(ctx, "U5", "U6", false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonNotAddableFromGroup, reason)
}
