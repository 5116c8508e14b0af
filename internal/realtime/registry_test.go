package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dekunlebells/okaygoal/internal/domain"
)

// requireSymmetric asserts that both directions of the registry agree: every
// channel→connection entry has a matching connection→channel entry and vice
// versa.
func requireSymmetric(t *testing.T, r *Registry) {
	t.Helper()

	forward := 0
	for channel, subs := range r.channels {
		require.NotEmpty(t, subs, "channel %q kept with no subscribers", channel)
		for c := range subs {
			assert.True(t, r.Has(c, channel), "channel %q lists a connection that does not list it back", channel)
			forward++
		}
	}

	backward := 0
	for c, chans := range r.conns {
		require.NotEmpty(t, chans, "connection kept with no channels")
		for channel := range chans {
			_, ok := r.channels[channel][c]
			assert.True(t, ok, "connection lists channel %q that does not list it back", channel)
			backward++
		}
	}

	assert.Equal(t, forward, backward)
	assert.Equal(t, forward, r.SubscriptionCount())
}

func TestRegistry_JoinLeave(t *testing.T) {
	r := NewRegistry()
	c := &Conn{}

	assert.True(t, r.Join(c, domain.ChannelLiveScores))
	assert.False(t, r.Join(c, domain.ChannelLiveScores), "duplicate join must be a no-op")
	assert.True(t, r.Has(c, domain.ChannelLiveScores))
	assert.Equal(t, 1, r.ChannelCount())
	assert.Equal(t, 1, r.SubscriptionCount())

	assert.True(t, r.Leave(c, domain.ChannelLiveScores))
	assert.False(t, r.Leave(c, domain.ChannelLiveScores), "double leave must be a no-op")
	assert.False(t, r.Has(c, domain.ChannelLiveScores))
	assert.Equal(t, 0, r.ChannelCount())
	assert.Equal(t, 0, r.SubscriptionCount())
}

func TestRegistry_LeaveUnknown(t *testing.T) {
	r := NewRegistry()
	c := &Conn{}

	assert.False(t, r.Leave(c, domain.MatchChannel(1)), "leaving a never-joined channel must be a no-op")
	requireSymmetric(t, r)
}

func TestRegistry_ChannelRemovedWithLastSubscriber(t *testing.T) {
	r := NewRegistry()
	c1 := &Conn{}
	c2 := &Conn{}
	channel := domain.MatchChannel(42)

	r.Join(c1, channel)
	r.Join(c2, channel)
	assert.Equal(t, 1, r.ChannelCount())
	assert.Len(t, r.SubscribersOf(channel), 2)

	r.Leave(c1, channel)
	assert.Equal(t, 1, r.ChannelCount(), "channel with remaining subscriber must stay")

	// Last unsubscribe garbage-collects the finished match's channel.
	r.Leave(c2, channel)
	assert.Equal(t, 0, r.ChannelCount())
	assert.Empty(t, r.SubscribersOf(channel))
	requireSymmetric(t, r)
}

func TestRegistry_DropCascade(t *testing.T) {
	r := NewRegistry()
	c := &Conn{}
	other := &Conn{}

	r.Join(c, domain.ChannelLiveScores)
	r.Join(c, domain.MatchChannel(1))
	r.Join(c, domain.ChannelNotifications)
	r.Join(other, domain.MatchChannel(1))

	left := r.Drop(c)
	assert.ElementsMatch(t, []string{
		domain.ChannelLiveScores,
		domain.MatchChannel(1),
		domain.ChannelNotifications,
	}, left)

	assert.Empty(t, r.ChannelsOf(c))
	assert.Len(t, r.SubscribersOf(domain.MatchChannel(1)), 1, "other subscribers must survive the cascade")
	assert.Equal(t, 1, r.ChannelCount())
	requireSymmetric(t, r)
}

func TestRegistry_DropUnknownConnection(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Drop(&Conn{}))
}

func TestRegistry_SymmetryUnderMixedOperations(t *testing.T) {
	r := NewRegistry()

	conns := make([]*Conn, 5)
	for i := range conns {
		conns[i] = &Conn{}
	}

	// An arbitrary mix of joins, duplicate joins, leaves, and drops. The
	// symmetry invariant must hold at every step.
	steps := []func(){
		func() { r.Join(conns[0], domain.ChannelLiveScores) },
		func() { r.Join(conns[1], domain.ChannelLiveScores) },
		func() { r.Join(conns[1], domain.MatchChannel(7)) },
		func() { r.Join(conns[2], domain.MatchChannel(7)) },
		func() { r.Join(conns[2], domain.MatchChannel(7)) },
		func() { r.Join(conns[3], domain.ChannelNotifications) },
		func() { r.Leave(conns[1], domain.ChannelLiveScores) },
		func() { r.Join(conns[4], domain.MatchChannel(9)) },
		func() { r.Drop(conns[2]) },
		func() { r.Leave(conns[4], domain.MatchChannel(9)) },
		func() { r.Drop(conns[0]) },
		func() { r.Join(conns[3], domain.MatchChannel(7)) },
		func() { r.Drop(conns[3]) },
	}

	for i, step := range steps {
		step()
		t.Run(fmt.Sprintf("step_%02d", i), func(t *testing.T) {
			requireSymmetric(t, r)
		})
	}

	assert.Equal(t, 1, r.SubscriptionCount())
	assert.True(t, r.Has(conns[1], domain.MatchChannel(7)))
}

func TestRegistry_SnapshotsAreStable(t *testing.T) {
	r := NewRegistry()
	c1 := &Conn{}
	c2 := &Conn{}
	channel := domain.MatchChannel(3)

	r.Join(c1, channel)
	r.Join(c2, channel)

	snapshot := r.SubscribersOf(channel)
	r.Drop(c1)
	r.Drop(c2)

	// The snapshot taken before the mutation is still intact.
	assert.Len(t, snapshot, 2)
	assert.Empty(t, r.SubscribersOf(channel))
}
