package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Dekunlebells/okaygoal/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 32
)

// Conn is one accepted WebSocket session. Outbound frames go through a
// buffered send channel drained by a dedicated writer goroutine, so a slow
// consumer never blocks fanout to others.
//
// The liveness fields (alive, lastLiveness) are owned by the hub goroutine.
type Conn struct {
	id         uuid.UUID
	identity   string
	remoteAddr string

	ws          *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	alive        bool
	lastLiveness time.Time
}

func newConn(ws *websocket.Conn, identity, remoteAddr string, clock clockwork.Clock) *Conn {
	c := &Conn{
		id:           uuid.New(),
		identity:     identity,
		remoteAddr:   remoteAddr,
		ws:           ws,
		clock:        clock,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		alive:        true,
		lastLiveness: clock.Now(),
	}
	c.wg.Add(1)
	go c.writeLoop()
	return c
}

// ID returns the connection's process-unique identifier.
func (c *Conn) ID() uuid.UUID { return c.id }

// Identity returns the authenticated user identity, or "" for anonymous
// connections.
func (c *Conn) Identity() string { return c.identity }

// limiterKey is the rate-limit key: the identity when authenticated, the
// remote address otherwise.
func (c *Conn) limiterKey() string {
	if c.identity != "" {
		return c.identity
	}
	return c.remoteAddr
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case msg, ok := <-c.sendChannel:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				// The connection is broken; the heartbeat sweep evicts it.
				slog.Debug("Write failed", "connection_id", c.id.String(), "error", err)
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// enqueue hands a frame to the writer without blocking. Returns false if the
// send buffer is full, which marks the consumer as too slow to keep.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case c.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// send builds, encodes, and enqueues an outbound envelope. Encoding failures
// and full buffers are logged, never fatal.
func (c *Conn) send(frameType string, data any) {
	env, err := domain.NewEnvelope(frameType, data, c.clock.Now())
	if err != nil {
		slog.Error("Failed to build outbound frame", "type", frameType, "error", err)
		return
	}
	raw, err := env.Encode()
	if err != nil {
		slog.Error("Failed to encode outbound frame", "type", frameType, "error", err)
		return
	}
	if !c.enqueue(raw) {
		slog.Warn("Dropping frame for slow connection", "connection_id", c.id.String(), "type", frameType)
	}
}

// sendError emits an error frame, with the remaining-quota hint when the
// error is a rate-limit rejection.
func (c *Conn) sendError(message string, remaining *int) {
	c.send(domain.TypeError, domain.ErrorData{Error: message, Remaining: remaining})
}

// stop terminates the writer goroutine and closes the socket.
func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.ws.Close()
	})
	c.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (c *Conn) stopGraceful(reason string) {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
		_ = c.ws.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.ws.Close()
	})
	c.wg.Wait()
}
