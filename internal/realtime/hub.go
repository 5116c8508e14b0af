package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Dekunlebells/okaygoal/internal/domain"
	"github.com/Dekunlebells/okaygoal/internal/metrics"
)

const (
	commandTimeout       = 5 * time.Second
	stopTimeout          = 10 * time.Second
	probeWriteDeadline   = 5 * time.Second
	commandChannelSize   = 256
	commandDepthInterval = 1 * time.Second
)

// DefaultHeartbeatInterval is the cadence of server liveness probes.
const DefaultHeartbeatInterval = 30 * time.Second

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	conn         *Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	conn *Conn
}

type controlCmd struct {
	baseHubCmd
	conn  *Conn
	frame domain.ControlFrame
}

type pongCmd struct {
	baseHubCmd
	conn *Conn
}

type publishCmd struct {
	baseHubCmd
	kind     string
	channels []string
	identity string
	payload  []byte
}

type countCmd struct {
	baseHubCmd
	query        func(h *Hub) int
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns every accepted connection and all subscription state. It is an
// actor: a single run() goroutine processes commands from a buffered channel,
// so registry mutations and fanout snapshots are serialized without locks.
// One hub instance is constructed per process and passed to the WebSocket
// handler and to the dispatcher.
//
// Blocking work stays out of the actor: rate-limit checks run on the
// per-connection read goroutine and network writes run on per-connection
// writer goroutines.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	limiter  domain.FrameRateLimiter
	verifier domain.TokenVerifier

	registry   *Registry
	conns      map[*Conn]struct{}
	identities map[string]map[*Conn]struct{}

	heartbeatInterval time.Duration
	done              chan struct{}
}

// NewHub creates and starts a hub. heartbeatInterval <= 0 selects the default
// 30s probe cadence.
func NewHub(limiter domain.FrameRateLimiter, verifier domain.TokenVerifier, clock clockwork.Clock, heartbeatInterval time.Duration) *Hub {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	h := &Hub{
		cmdCh:             make(chan hubCmd, commandChannelSize),
		clock:             clock,
		limiter:           limiter,
		verifier:          verifier,
		registry:          NewRegistry(),
		conns:             make(map[*Conn]struct{}),
		identities:        make(map[string]map[*Conn]struct{}),
		heartbeatInterval: heartbeatInterval,
		done:              make(chan struct{}),
	}
	go h.run()
	return h
}

// Accept takes ownership of an upgraded WebSocket connection. A present,
// valid credential sets the connection's identity; a present, invalid one
// degrades to anonymous after an error frame — authentication gates personal
// channels and nothing else. The first outbound frame reports the resulting
// status.
func (h *Hub) Accept(ws *websocket.Conn, token, remoteAddr string) (*Conn, error) {
	identity := ""
	var authErr error
	if token != "" {
		identity, authErr = h.verifier.Verify(token)
		if authErr != nil {
			slog.Warn("Invalid connect token, degrading to anonymous", "remote_addr", remoteAddr, "error", authErr)
			identity = ""
		}
	}

	c := newConn(ws, identity, remoteAddr, h.clock)

	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{conn: c, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			c.stop()
			return nil, err
		}
	case <-timer.Chan():
		c.stop()
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}

	ws.SetPongHandler(func(string) error {
		h.cmdCh <- pongCmd{conn: c}
		return nil
	})

	if authErr != nil {
		c.sendError(domain.ErrInvalidToken.Error(), nil)
	}
	status := domain.StatusConnected
	result := "anonymous"
	if identity != "" {
		status = domain.StatusAuthenticated
		result = "authenticated"
	}
	c.send(domain.TypeConnection, domain.ConnectionData{Status: status})
	metrics.ConnectionsTotal.WithLabelValues(result).Inc()

	return c, nil
}

// Remove releases a connection after its read pump exits. Idempotent with the
// heartbeat eviction sweep.
func (h *Hub) Remove(c *Conn) {
	h.cmdCh <- unregisterCmd{conn: c}
}

// HandleInbound processes one raw inbound message. It runs on the
// connection's read goroutine: parsing, the ping reply, and the blocking
// rate-limit round-trip all happen here, and only registry-mutating frames
// are forwarded to the actor. Protocol violations answer with an error frame
// and leave the connection open.
func (h *Hub) HandleInbound(ctx context.Context, c *Conn, raw []byte) {
	frame, err := domain.ParseControlFrame(raw)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownFrameType):
			metrics.ControlFramesTotal.WithLabelValues("unknown", "error").Inc()
			c.sendError(domain.ErrUnknownFrameType.Error(), nil)
		default:
			metrics.ControlFramesTotal.WithLabelValues("malformed", "error").Inc()
			c.sendError(domain.ErrMalformedFrame.Error(), nil)
		}
		return
	}

	if _, ok := frame.(domain.Ping); ok {
		metrics.ControlFramesTotal.WithLabelValues(domain.TypePing, "ok").Inc()
		c.send(domain.TypePong, nil)
		return
	}

	if domain.StateChanging(frame) {
		decision := h.limiter.CheckAndIncrement(ctx, c.limiterKey())
		if !decision.Allowed {
			remaining := decision.Remaining
			metrics.ControlFramesTotal.WithLabelValues(frameType(frame), "rejected").Inc()
			c.sendError(domain.ErrRateLimited.Error(), &remaining)
			return
		}
	}

	h.cmdCh <- controlCmd{conn: c, frame: frame}
}

// ClientCount returns the number of registered connections. Returns -1 if the
// hub does not answer within the command timeout.
func (h *Hub) ClientCount() int {
	return h.count(func(h *Hub) int { return len(h.conns) })
}

// SubscriberCount returns the number of connections subscribed to a channel.
func (h *Hub) SubscriberCount(channel string) int {
	return h.count(func(h *Hub) int { return len(h.registry.SubscribersOf(channel)) })
}

// ChannelCount returns the number of channels with at least one subscriber.
func (h *Hub) ChannelCount() int {
	return h.count(func(h *Hub) int { return h.registry.ChannelCount() })
}

func (h *Hub) count(query func(h *Hub) int) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- countCmd{query: query, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("Hub count query timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down, closing every connection. Blocks until the actor
// goroutine exits or the stop timeout elapses.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	heartbeat := h.clock.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	depthTicker := h.clock.NewTicker(commandDepthInterval)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			metrics.HubCommandChannelDepth.Set(float64(len(h.cmdCh)))

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleEvict(c.conn, "", false)
			case controlCmd:
				h.handleControl(c.conn, c.frame)
			case pongCmd:
				h.handlePong(c.conn)
			case publishCmd:
				h.handlePublish(c)
			case countCmd:
				c.replyChannel <- c.query(h)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}

		case <-heartbeat.Chan():
			h.handleHeartbeat()
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	conn := c.conn
	h.conns[conn] = struct{}{}
	if conn.identity != "" {
		set, ok := h.identities[conn.identity]
		if !ok {
			set = make(map[*Conn]struct{})
			h.identities[conn.identity] = set
		}
		set[conn] = struct{}{}
	}

	metrics.ConnectionsCurrent.Set(float64(len(h.conns)))
	slog.Debug("Connection registered",
		"connection_id", conn.id.String(),
		"identity", conn.identity,
		"total_connections", len(h.conns),
	)
	c.errorChannel <- nil
}

// handleEvict removes a connection from the registry, the identity index, and
// the connection set. Atomic with respect to fanout because both run on the
// actor goroutine.
func (h *Hub) handleEvict(conn *Conn, reason string, graceful bool) {
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)

	left := h.registry.Drop(conn)
	if conn.identity != "" {
		set := h.identities[conn.identity]
		delete(set, conn)
		if len(set) == 0 {
			delete(h.identities, conn.identity)
		}
	}

	if graceful {
		conn.stopGraceful(reason)
	} else {
		conn.stop()
	}

	h.updateRegistryMetrics()
	metrics.ConnectionsCurrent.Set(float64(len(h.conns)))
	slog.Debug("Connection removed",
		"connection_id", conn.id.String(),
		"reason", reason,
		"channels_left", len(left),
		"total_connections", len(h.conns),
	)
}

// handleControl applies one state-changing control frame. The switch is
// exhaustive over the control-frame union.
func (h *Hub) handleControl(conn *Conn, frame domain.ControlFrame) {
	switch f := frame.(type) {
	case domain.SubscribeLiveScores:
		h.subscribe(conn, domain.TypeSubscribeLiveScores, domain.ChannelLiveScores)

	case domain.SubscribeMatch:
		h.subscribe(conn, domain.TypeSubscribeMatch, domain.MatchChannel(f.MatchID))

	case domain.UnsubscribeMatch:
		channel := domain.MatchChannel(f.MatchID)
		h.registry.Leave(conn, channel)
		h.updateRegistryMetrics()
		metrics.ControlFramesTotal.WithLabelValues(domain.TypeUnsubscribeMatch, "ok").Inc()
		conn.send(domain.TypeUnsubscriptionSuccess, domain.SubscriptionData{Subscription: channel})

	case domain.SubscribeUserNotifications:
		if conn.identity == "" {
			metrics.ControlFramesTotal.WithLabelValues(domain.TypeSubscribeUserNotifications, "error").Inc()
			conn.sendError(domain.ErrNotIdentified.Error(), nil)
			return
		}
		h.subscribe(conn, domain.TypeSubscribeUserNotifications, domain.ChannelNotifications)

	case domain.Ping:
		// Answered on the read goroutine; nothing to do here.
	}
}

func (h *Hub) subscribe(conn *Conn, frameType, channel string) {
	h.registry.Join(conn, channel)
	h.updateRegistryMetrics()
	metrics.ControlFramesTotal.WithLabelValues(frameType, "ok").Inc()
	conn.send(domain.TypeSubscriptionSuccess, domain.SubscriptionData{Subscription: channel})
}

func (h *Hub) handlePong(conn *Conn) {
	if _, ok := h.conns[conn]; !ok {
		return
	}
	conn.alive = true
	conn.lastLiveness = h.clock.Now()
}

// handleHeartbeat is the liveness sweep: a connection that has not answered
// the previous probe is evicted; everyone else is marked pending and probed
// again. This is the sole half-open detection mechanism.
func (h *Hub) handleHeartbeat() {
	var dead []*Conn
	for conn := range h.conns {
		if !conn.alive {
			dead = append(dead, conn)
			continue
		}
		conn.alive = false
		deadline := h.clock.Now().Add(probeWriteDeadline)
		if err := conn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			// Probe write failed; the cleared alive flag evicts it next tick.
			slog.Debug("Heartbeat probe failed", "connection_id", conn.id.String(), "error", err)
		}
	}

	for _, conn := range dead {
		metrics.HeartbeatEvictions.Inc()
		slog.Info("Evicting unresponsive connection", "connection_id", conn.id.String())
		h.handleEvict(conn, "heartbeat timeout", false)
	}
}

// handlePublish delivers one published payload. The subscriber set is
// snapshotted and deduplicated on the actor goroutine; the actual network
// writes happen on the per-connection writer goroutines, so a broken or slow
// socket never stalls the remaining fanout.
func (h *Hub) handlePublish(p publishCmd) {
	targets := make(map[*Conn]struct{})
	if p.identity != "" {
		// Personal fanout: identity index ∩ notification subscribers.
		// Identified but unsubscribed connections receive nothing.
		for conn := range h.identities[p.identity] {
			if h.registry.Has(conn, domain.ChannelNotifications) {
				targets[conn] = struct{}{}
			}
		}
	} else {
		for _, channel := range p.channels {
			for _, conn := range h.registry.SubscribersOf(channel) {
				targets[conn] = struct{}{}
			}
		}
	}

	var slow []*Conn
	for conn := range targets {
		if !conn.enqueue(p.payload) {
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		metrics.BroadcastDrops.Inc()
		metrics.SlowClientsEvicted.Inc()
		slog.Warn("Evicting slow connection during fanout",
			"connection_id", conn.id.String(),
			"kind", p.kind,
		)
		h.handleEvict(conn, "send buffer full", false)
	}

	metrics.BroadcastsTotal.WithLabelValues(p.kind).Inc()
	metrics.BroadcastFanout.Observe(float64(len(targets)))
}

func (h *Hub) handleStop() {
	total := len(h.conns)
	slog.Info("Hub shutting down", "connections", total)
	for conn := range h.conns {
		conn.stopGraceful("server shutting down")
		delete(h.conns, conn)
	}
	h.registry = NewRegistry()
	h.identities = make(map[string]map[*Conn]struct{})
	h.updateRegistryMetrics()
	metrics.ConnectionsCurrent.Set(0)
	slog.Info("Hub shutdown complete", "disconnected_connections", total)
}

func (h *Hub) updateRegistryMetrics() {
	metrics.ChannelsCurrent.Set(float64(h.registry.ChannelCount()))
	metrics.SubscriptionsCurrent.Set(float64(h.registry.SubscriptionCount()))
}

func frameType(f domain.ControlFrame) string {
	switch f.(type) {
	case domain.SubscribeLiveScores:
		return domain.TypeSubscribeLiveScores
	case domain.SubscribeMatch:
		return domain.TypeSubscribeMatch
	case domain.UnsubscribeMatch:
		return domain.TypeUnsubscribeMatch
	case domain.SubscribeUserNotifications:
		return domain.TypeSubscribeUserNotifications
	case domain.Ping:
		return domain.TypePing
	default:
		return "unknown"
	}
}
