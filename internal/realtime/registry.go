package realtime

// Registry is the in-memory channel/connection subscription mapping. It keeps
// both directions of the relation and they must always agree: a subscription
// exists in the channel→connections map exactly when it exists in the
// connection→channels map.
//
// The registry does no locking and no I/O; the hub goroutine serializes all
// access.
type Registry struct {
	channels map[string]map[*Conn]struct{}
	conns    map[*Conn]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[*Conn]struct{}),
		conns:    make(map[*Conn]map[string]struct{}),
	}
}

// Join subscribes the connection to the channel, creating the channel entry if
// absent. Returns false if the subscription already existed.
func (r *Registry) Join(c *Conn, channel string) bool {
	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[*Conn]struct{})
		r.channels[channel] = subs
	}
	if _, exists := subs[c]; exists {
		return false
	}
	subs[c] = struct{}{}

	chans, ok := r.conns[c]
	if !ok {
		chans = make(map[string]struct{})
		r.conns[c] = chans
	}
	chans[channel] = struct{}{}
	return true
}

// Leave removes the subscription and deletes the channel entry once its
// subscriber set is empty, so finished matches do not accumulate. Returns
// false if the subscription did not exist.
func (r *Registry) Leave(c *Conn, channel string) bool {
	subs, ok := r.channels[channel]
	if !ok {
		return false
	}
	if _, exists := subs[c]; !exists {
		return false
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(r.channels, channel)
	}

	chans := r.conns[c]
	delete(chans, channel)
	if len(chans) == 0 {
		delete(r.conns, c)
	}
	return true
}

// Drop removes every subscription the connection holds and returns the
// channels it left. Used when a connection closes.
func (r *Registry) Drop(c *Conn) []string {
	chans := r.conns[c]
	left := make([]string, 0, len(chans))
	for channel := range chans {
		left = append(left, channel)
	}
	for _, channel := range left {
		r.Leave(c, channel)
	}
	return left
}

// SubscribersOf returns a snapshot of the channel's subscribers. The snapshot
// is safe to iterate after the registry has been mutated.
func (r *Registry) SubscribersOf(channel string) []*Conn {
	subs := r.channels[channel]
	out := make([]*Conn, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// ChannelsOf returns a snapshot of the channels the connection is subscribed to.
func (r *Registry) ChannelsOf(c *Conn) []string {
	chans := r.conns[c]
	out := make([]string, 0, len(chans))
	for channel := range chans {
		out = append(out, channel)
	}
	return out
}

// Has reports whether the connection is subscribed to the channel.
func (r *Registry) Has(c *Conn, channel string) bool {
	_, ok := r.conns[c][channel]
	return ok
}

// ChannelCount returns the number of channels with at least one subscriber.
func (r *Registry) ChannelCount() int {
	return len(r.channels)
}

// SubscriptionCount returns the total number of (connection, channel) pairs.
func (r *Registry) SubscriptionCount() int {
	total := 0
	for _, chans := range r.conns {
		total += len(chans)
	}
	return total
}
