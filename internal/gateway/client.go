package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/internal/permissions"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// sendBufferSize bounds the client's outbound event queue. A subscriber
// that can't keep up is dropped with SlowConsumer rather than letting the
// publisher block (spec §4.1 event bus back-pressure policy).
const sendBufferSize = 256

// Client wraps one authenticated WebSocket connection: a read pump feeding
// method_call frames to the server's MethodRouter, and a write pump
// draining a bounded outbound queue so a slow reader can never stall the
// goroutine that publishes events.
type Client struct {
	id     string
	role   permissions.Role
	conn   *websocket.Conn
	server *Server

	send   chan []byte
	closed chan struct{}
	once   sync.Once

	// pending holds in-flight agent.wait registrations so a dropped
	// connection can release them without cancelling the underlying turn.
	mu      sync.Mutex
	pending map[string]func()
}

// NewClient wraps an accepted WebSocket connection. The caller is
// responsible for running the handshake (via Handshake) before Run.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		server:  s,
		send:    make(chan []byte, sendBufferSize),
		closed:  make(chan struct{}),
		pending: make(map[string]func()),
	}
}

// Role reports the role this connection authenticated as.
func (c *Client) Role() permissions.Role { return c.role }

// Close terminates the connection and releases any pending agent.wait
// registrations (without cancelling the underlying turn — other
// subscribers or the originating adapter may still need it).
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})

	c.mu.Lock()
	releases := make([]func(), 0, len(c.pending))
	for _, release := range c.pending {
		releases = append(releases, release)
	}
	c.pending = map[string]func(){}
	c.mu.Unlock()

	for _, release := range releases {
		release()
	}
}

// RegisterPending tracks a long-running method's cleanup (e.g. agent.wait)
// so Close can release it if the connection drops mid-call.
func (c *Client) RegisterPending(id string, release func()) {
	c.mu.Lock()
	c.pending[id] = release
	c.mu.Unlock()
}

// ResolvePending removes a pending registration once it completes normally.
func (c *Client) ResolvePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// SendEvent enqueues an event frame. If the client's send buffer is full
// the client is dropped outright with SlowConsumer rather than blocking
// the publisher.
func (c *Client) SendEvent(evt protocol.EventFrame) {
	c.sendFrame(evt)
}

// SendResponse enqueues a response frame.
func (c *Client) SendResponse(resp protocol.ResponseFrame) {
	c.sendFrame(resp)
}

func (c *Client) sendFrame(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("gateway: failed to marshal frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("gateway: slow consumer, dropping client", "id", c.id)
		go c.Close()
	}
}

// handshake runs the spec §4.1 sequence: hello → challenge → proof. On any
// deviation the connection is closed with AuthFailed and handshake returns
// an error; Run must not be called afterward.
func (c *Client) handshake() error {
	c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var hello protocol.HelloFrame
	if err := c.conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != protocol.FrameTypeHello {
		c.writeRaw(protocol.NewErrorFrame(protocol.ErrAuthFailed, "expected hello frame"))
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate challenge nonce: %w", err)
	}
	nonceHex := hex.EncodeToString(nonce)

	if err := c.conn.WriteJSON(protocol.ChallengeFrame{Type: protocol.FrameTypeChallenge, Nonce: nonceHex}); err != nil {
		return fmt.Errorf("write challenge: %w", err)
	}

	var proof protocol.ProofFrame
	c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	if err := c.conn.ReadJSON(&proof); err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	if proof.Type != protocol.FrameTypeProof {
		c.writeRaw(protocol.NewErrorFrame(protocol.ErrAuthFailed, "expected proof frame"))
		return fmt.Errorf("expected proof, got %q", proof.Type)
	}

	role, err := c.server.authenticate(hello, proof, nonce)
	if err != nil {
		c.writeRaw(protocol.NewErrorFrame(protocol.ErrAuthFailed, err.Error()))
		return err
	}

	c.role = role
	c.conn.SetReadDeadline(time.Time{})
	return nil
}

func (c *Client) writeRaw(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.conn.WriteMessage(websocket.TextMessage, data)
}

// Run drives the client's read and write pumps until ctx is cancelled or
// the connection closes. Callers must have already completed handshake.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()

	c.readPump(ctx)
	cancel()
	wg.Wait()
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		frameType, err := protocol.ParseFrameType(raw)
		if err != nil {
			continue
		}

		if frameType != protocol.FrameTypeRequest {
			continue // unsolicited event/response frames from a client are ignored
		}

		var req protocol.RequestFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}

		if c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
			c.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrRateLimited, "too many requests"))
			continue
		}

		if !c.server.policyEngine.Allow(c.role, req.Method) {
			c.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnknownMethod, "method not permitted for this role"))
			continue
		}

		// Each method runs as its own logical task so a slow handler never
		// blocks the read pump from draining the next frame.
		go c.server.router.Dispatch(ctx, c, req)
	}
}
