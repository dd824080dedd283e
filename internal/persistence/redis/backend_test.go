package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "attendance:"), server
}

func TestBackend_ReadMissingKey(t *testing.T) {
	backend, _ := newTestBackend(t)

	data, found, err := backend.Read(context.Background(), "state")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestBackend_WriteUsesPrefix(t *testing.T) {
	backend, server := newTestBackend(t)

	require.NoError(t, backend.Write(context.Background(), "state", []byte(`{"courses":[]}`)))

	stored, err := server.Get("attendance:state")
	require.NoError(t, err)
	assert.Equal(t, `{"courses":[]}`, stored)

	data, found, err := backend.Read(context.Background(), "state")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"courses":[]}`, string(data))
}

func TestBackend_ReadFailsWhenServerIsDown(t *testing.T) {
	backend, server := newTestBackend(t)
	server.Close()

	_, _, err := backend.Read(context.Background(), "state")
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	server := miniredis.RunT(t)

	backend, err := Dial(context.Background(), "redis://"+server.Addr()+"/0", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	store := persistence.NewStore(backend, "", nil)
	snap := persistence.EmptySnapshot()
	snap.Participants[1] = []persistence.Participant{{ID: 1, IdentityNumber: "20123456789"}}
	require.NoError(t, store.Save(context.Background(), persistence.KioskFields, snap))

	raw, err := server.Get(persistence.DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"nextParticipantId":2`)
	assert.NotContains(t, raw, `"courses"`)
}
