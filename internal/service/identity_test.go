package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginCreatesThenReuses(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.identity.Login(ctx, "  Alice ", models.RolePublisher)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ID, "user_alice_"))
	assert.Equal(t, "Alice", first.Name)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, models.RolePublisher, first.Role)

	again, err := e.identity.Login(ctx, "ALICE", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.RolePublisher, again.Role)
	assert.False(t, again.LastLogin.Before(first.LastLogin))

	switched, err := e.identity.Login(ctx, "alice", models.RoleSubscriber)
	require.NoError(t, err)
	assert.Equal(t, first.ID, switched.ID)
	assert.Equal(t, models.RoleSubscriber, switched.Role)

	users, err := e.identity.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLoginValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.identity.Login(ctx, " a ", "")
	assert.Equal(t, "username", apperr.FieldOf(err))

	_, err = e.identity.Login(ctx, "alice", models.Role("admin"))
	assert.Equal(t, "role", apperr.FieldOf(err))

	u, err := e.identity.Login(ctx, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSubscriber, u.Role)
}

func TestDeactivateFreesUsername(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	old, err := e.identity.Login(ctx, "carol", models.RolePublisher)
	require.NoError(t, err)
	require.NoError(t, e.identity.Deactivate(ctx, old.ID))

	_, err = e.identity.Get(ctx, old.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.False(t, e.identity.Exists(ctx, old.ID))
	assert.Equal(t, old.ID, e.identity.ResolveName(ctx, old.ID))

	err = e.identity.Deactivate(ctx, old.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	fresh, err := e.identity.Login(ctx, "carol", "")
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
	assert.True(t, e.identity.Exists(ctx, fresh.ID))
}

func TestUpdateUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u, err := e.identity.Login(ctx, "dave", models.RoleSubscriber)
	require.NoError(t, err)

	name := "Dave G"
	role := models.RolePublisher
	updated, err := e.identity.Update(ctx, u.ID, service.UserPatch{Name: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Dave G", updated.Name)
	assert.Equal(t, models.RolePublisher, updated.Role)
	assert.Equal(t, "Dave G", e.identity.ResolveName(ctx, u.ID))

	bad := models.Role("owner")
	_, err = e.identity.Update(ctx, u.ID, service.UserPatch{Role: &bad})
	assert.Equal(t, "role", apperr.FieldOf(err))
}

func TestResolveNameFallsBackToID(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, "user_nobody_1", e.identity.ResolveName(context.Background(), "user_nobody_1"))
	assert.False(t, e.identity.Exists(context.Background(), "user_nobody_1"))
}

func TestUserStats(t *testing.T) {
	e := newTestEnv(t, withReconciler(&recordingReconciler{}))
	ctx := context.Background()

	u, err := e.identity.Login(ctx, "erin", models.RolePublisher)
	require.NoError(t, err)
	a := e.createChannel(t, "Alpha", u.ID)
	b := e.createChannel(t, "Bravo", "pub2")

	_, err = e.ledger.Subscribe(ctx, u.ID, a.ID)
	require.NoError(t, err)
	_, err = e.ledger.Subscribe(ctx, u.ID, b.ID)
	require.NoError(t, err)
	_, err = e.ledger.Unsubscribe(ctx, u.ID, b.ID)
	require.NoError(t, err)

	_, err = e.msgs.Publish(ctx, a.ID, "hello", u.ID)
	require.NoError(t, err)

	stats, err := e.identity.Stats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSubscriptions)
	assert.Equal(t, 1, stats.ActiveSubscriptions)
	assert.Equal(t, 1, stats.MessagesSent)
	assert.Equal(t, u.CreatedAt, stats.MemberSince)
}
