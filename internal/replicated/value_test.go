package replicated

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityWriteNotifiesObservers(t *testing.T) {
	v := New(RoleAuthority, 0)
	var seen [][2]int
	v.Subscribe(func(prev, next int) { seen = append(seen, [2]int{prev, next}) })

	require.NoError(t, v.SetFromAuthority(3))
	require.NoError(t, v.SetFromAuthority(3))

	assert.Equal(t, 3, v.Get())
	assert.Equal(t, [][2]int{{0, 3}, {3, 3}}, seen, "observers fire for every accepted write")
}

func TestReplicaRejectsAuthoritativeWrite(t *testing.T) {
	v := New(RoleReplica, "idle")
	fired := false
	v.Subscribe(func(string, string) { fired = true })

	assert.ErrorIs(t, v.SetFromAuthority("busy"), ErrNotAuthority)
	assert.Equal(t, "idle", v.Get())
	assert.False(t, fired)
}

func TestAuthorityRejectsApply(t *testing.T) {
	v := New(RoleAuthority, 1.5)
	assert.ErrorIs(t, v.Apply(2), ErrNotReplica)
	assert.Equal(t, 1.5, v.Get())
}

func TestReplicaRequestForwardsWithoutLocalWrite(t *testing.T) {
	v := New(RoleReplica, false)
	var forwarded []bool
	v.SetRequestSink(func(next bool) { forwarded = append(forwarded, next) })

	v.RequestSet(true)

	assert.False(t, v.Get(), "replica waits for the authority echo")
	assert.Equal(t, []bool{true}, forwarded)

	require.NoError(t, v.Apply(true))
	assert.True(t, v.Get())
}

func TestReplicaRequestWithoutSinkIsDropped(t *testing.T) {
	v := New(RoleReplica, 4)
	v.RequestSet(9)
	assert.Equal(t, 4, v.Get())
}

func TestAuthorityRequestWritesDirectly(t *testing.T) {
	v := New(RoleAuthority, 1)
	calls := 0
	v.Subscribe(func(int, int) { calls++ })
	v.RequestSet(2)
	assert.Equal(t, 2, v.Get())
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	v := New(RoleAuthority, 0)
	first, second := 0, 0
	cancel := v.Subscribe(func(int, int) { first++ })
	v.Subscribe(func(int, int) { second++ })

	require.NoError(t, v.SetFromAuthority(1))
	cancel()
	cancel()
	require.NoError(t, v.SetFromAuthority(2))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestObserverMayReadValue(t *testing.T) {
	v := New(RoleAuthority, 0)
	var observed int
	v.Subscribe(func(_, _ int) { observed = v.Get() })
	require.NoError(t, v.SetFromAuthority(5))
	assert.Equal(t, 5, observed)
}
