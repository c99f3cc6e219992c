package realtime

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/realtime/realtimetest"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LastWriterWins(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	first := realtimetest.NewConn("u1")
	second := realtimetest.NewConn("u1")

	req.Nil(reg.Register("u1", first))
	req.Equal(first, reg.Register("u1", second))

	got, ok := reg.Lookup("u1")
	req.True(ok)
	req.Equal(second, got)
	req.Equal(1, reg.Len())
}

func TestRegistry_ReleaseIgnoresStaleConnection(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	// Given a reconnect
	stale := realtimetest.NewConn("u1")
	current := realtimetest.NewConn("u1")
	reg.Register("u1", stale)
	reg.Register("u1", current)

	// When the stale connection goes away
	released := reg.Release("u1", stale)

	// Then the current connection survives
	req.False(released)
	req.True(reg.IsConnected("u1"))

	req.True(reg.Release("u1", current))
	req.False(reg.IsConnected("u1"))
}

func TestRegistry_ResolveManySkipsUnknownAndDuplicates(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	a := realtimetest.NewConn("a")
	reg.Register("a", a)

	conns := reg.ResolveMany([]identity.ID{"a", "ghost", "a"})

	req.Len(conns, 1)
	req.Equal(a, conns[0])
	req.Empty(reg.ResolveMany(nil))
}

func TestRegistry_ResolveManyNeverReturnsUnregistered(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := make([]identity.ID, 12)
	for i := range ids {
		ids[i] = identity.ID(fmt.Sprintf("user-%d", i))
	}

	for round := 0; round < 50; round++ {
		reg := NewRegistry()
		model := map[identity.ID]Conn{}

		for step := 0; step < 200; step++ {
			id := ids[rng.Intn(len(ids))]
			switch rng.Intn(3) {
			case 0, 1:
				c := realtimetest.NewConn(id)
				reg.Register(id, c)
				model[id] = c
			case 2:
				reg.Unregister(id)
				delete(model, id)
			}

			resolved := reg.ResolveMany(ids)
			require.Len(t, resolved, len(model))
			for _, c := range resolved {
				want, ok := model[c.Identity()]
				require.True(t, ok, "resolved unregistered identity %s", c.Identity())
				require.Equal(t, want, c)
			}
		}
	}
}
