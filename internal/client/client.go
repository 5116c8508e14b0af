// Package client is the consumer-side reconnection controller: it owns the
// outbound WebSocket connection's lifecycle, backs off exponentially after
// abnormal closes, and replays the subscription set after every successful
// reconnect. The server keeps no cross-connection subscription memory, so
// replay is client-authoritative.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Dekunlebells/okaygoal/internal/domain"
)

// State of the reconnection controller.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

const (
	defaultBackoffFloor   = 1 * time.Second
	defaultBackoffCeiling = 30 * time.Second
	defaultMaxRetries     = 5
	defaultPingInterval   = 25 * time.Second
	clientWriteDeadline   = 5 * time.Second
)

// Config configures a Client. URL is required; everything else has defaults.
type Config struct {
	URL   string
	Token string

	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	MaxRetries     int
	PingInterval   time.Duration

	Clock clockwork.Clock

	// OnFrame receives every inbound server frame except pong replies.
	OnFrame func(domain.Envelope)
	// OnStateChange observes controller state transitions.
	OnStateChange func(State)
	// OnGiveUp fires once when the retry budget is exhausted.
	OnGiveUp func(error)
}

// Client is the reconnection controller. Construct with New, start with
// Connect, stop with Close. A Client is not reusable after Close or give-up.
type Client struct {
	cfg Config

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	wanted map[string]domain.ControlFrame
	closed bool

	writeMu      sync.Mutex
	awaitingPong bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client for the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("client URL is required")
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = defaultBackoffFloor
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = defaultBackoffCeiling
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		wanted: make(map[string]domain.ControlFrame),
		done:   make(chan struct{}),
	}, nil
}

// Connect starts the connection loop. It returns immediately; connection
// progress is observable through OnStateChange.
func (c *Client) Connect(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(runCtx)
}

// Close performs an intentional disconnect: no reconnect is scheduled and all
// local subscription state is cleared. Blocks until the loop exits.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.wanted = make(map[string]domain.ControlFrame)
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(clientWriteDeadline))
		_ = conn.Close()
	}
	if cancel == nil {
		// Connect was never called; there is no loop to wait for.
		return
	}
	cancel()
	<-c.done
}

// State returns the current controller state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns the channel set that would be replayed on reconnect.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.wanted))
	for channel := range c.wanted {
		out = append(out, channel)
	}
	return out
}

// SubscribeLiveScores joins the global live-scores channel.
func (c *Client) SubscribeLiveScores() {
	c.subscribe(domain.ChannelLiveScores, domain.SubscribeLiveScores{})
}

// SubscribeMatch joins the event channel for one match.
func (c *Client) SubscribeMatch(matchID int64) {
	c.subscribe(domain.MatchChannel(matchID), domain.SubscribeMatch{MatchID: matchID})
}

// SubscribeUserNotifications joins the personal notification channel.
// Requires the connect token to carry an identity; otherwise the server
// answers with an error frame.
func (c *Client) SubscribeUserNotifications() {
	c.subscribe(domain.ChannelNotifications, domain.SubscribeUserNotifications{})
}

// UnsubscribeMatch leaves a match channel and removes it from the replay set.
func (c *Client) UnsubscribeMatch(matchID int64) {
	channel := domain.MatchChannel(matchID)
	c.mu.Lock()
	delete(c.wanted, channel)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.sendFrame(conn, domain.UnsubscribeMatch{MatchID: matchID})
	}
}

func (c *Client) subscribe(channel string, frame domain.ControlFrame) {
	c.mu.Lock()
	c.wanted[channel] = frame
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.sendFrame(conn, frame)
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			slog.Warn("Dial failed", "url", c.cfg.URL, "attempt", attempts, "error", err)
			if c.backoffOrGiveUp(ctx, attempts, err) {
				return
			}
			continue
		}

		// Successful handshake: reset the retry budget and the backoff
		// interval, then replay every subscription held before the gap.
		attempts = 0
		c.attach(conn)
		c.setState(StateOpen)
		c.replaySubscriptions(conn)

		stopPinger := c.startPinger(ctx, conn)
		readErr := c.readLoop(conn)
		stopPinger()
		c.detach(conn)

		if c.isClosed() || ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		attempts++
		slog.Warn("Connection lost", "attempt", attempts, "error", readErr)
		if c.backoffOrGiveUp(ctx, attempts, readErr) {
			return
		}
	}
}

// backoffOrGiveUp waits out the backoff delay for this attempt, or reports
// true when the retry budget is exhausted or the context ended.
func (c *Client) backoffOrGiveUp(ctx context.Context, attempts int, cause error) bool {
	if attempts > c.cfg.MaxRetries {
		c.setState(StateGivenUp)
		if c.cfg.OnGiveUp != nil {
			c.cfg.OnGiveUp(fmt.Errorf("giving up after %d reconnect attempts: %w", c.cfg.MaxRetries, cause))
		}
		return true
	}

	c.setState(StateBackoff)
	delay := backoffDelay(attempts, c.cfg.BackoffFloor, c.cfg.BackoffCeiling)
	select {
	case <-c.cfg.Clock.After(delay):
		return false
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return true
	}
}

// backoffDelay doubles from floor per consecutive failure, capped at ceiling:
// 1s, 2s, 4s, ... with the defaults.
func backoffDelay(attempt int, floor, ceiling time.Duration) time.Duration {
	delay := floor
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialURL := c.cfg.URL
	if c.cfg.Token != "" {
		u, err := url.Parse(dialURL)
		if err != nil {
			return nil, fmt.Errorf("invalid client URL: %w", err)
		}
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
		dialURL = u.String()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.writeMu.Lock()
	c.awaitingPong = false
	c.writeMu.Unlock()
}

func (c *Client) detach(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) replaySubscriptions(conn *websocket.Conn) {
	c.mu.Lock()
	frames := make([]domain.ControlFrame, 0, len(c.wanted))
	for _, frame := range c.wanted {
		frames = append(frames, frame)
	}
	c.mu.Unlock()

	for _, frame := range frames {
		c.sendFrame(conn, frame)
	}
}

// readLoop delivers inbound frames until the connection fails. Transport-level
// ping probes from the server are answered by the dialer's default handler;
// application-level pong replies feed the stall detector.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Discarding malformed server frame", "error", err)
			continue
		}

		if env.Type == domain.TypePong {
			c.writeMu.Lock()
			c.awaitingPong = false
			c.writeMu.Unlock()
			continue
		}

		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(env)
		}
	}
}

// startPinger runs the application-level ping loop, independent of the
// server's transport heartbeat. A missing pong by the next tick closes the
// connection so the reconnect path can detect a silently stalled link.
func (c *Client) startPinger(ctx context.Context, conn *websocket.Conn) func() {
	pingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := c.cfg.Clock.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				c.writeMu.Lock()
				stalled := c.awaitingPong
				c.writeMu.Unlock()
				if stalled {
					slog.Warn("No pong since last ping, closing stalled connection")
					_ = conn.Close()
					return
				}
				c.writeMu.Lock()
				c.awaitingPong = true
				c.writeMu.Unlock()
				c.sendFrame(conn, domain.Ping{})
			case <-pingCtx.Done():
				return
			}
		}
	}()
	return cancel
}

func (c *Client) sendFrame(conn *websocket.Conn, frame domain.ControlFrame) {
	var (
		frameType string
		data      any
	)
	switch f := frame.(type) {
	case domain.SubscribeLiveScores:
		frameType = domain.TypeSubscribeLiveScores
	case domain.SubscribeMatch:
		frameType = domain.TypeSubscribeMatch
		data = map[string]int64{"matchId": f.MatchID}
	case domain.UnsubscribeMatch:
		frameType = domain.TypeUnsubscribeMatch
		data = map[string]int64{"matchId": f.MatchID}
	case domain.SubscribeUserNotifications:
		frameType = domain.TypeSubscribeUserNotifications
	case domain.Ping:
		frameType = domain.TypePing
	}

	env, err := domain.NewEnvelope(frameType, data, c.cfg.Clock.Now())
	if err != nil {
		slog.Error("Failed to build control frame", "type", frameType, "error", err)
		return
	}
	raw, err := env.Encode()
	if err != nil {
		slog.Error("Failed to encode control frame", "type", frameType, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		slog.Warn("Failed to send control frame", "type", frameType, "error", err)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
