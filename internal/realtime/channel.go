package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inertia-live/inertia-go/internal/observability"

	"github.com/gorilla/websocket"
)

// State is the lifecycle of one channel. A channel that loses its connection
// while the session is live goes back to StateConnecting, not StateClosed.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateEstablished:
		return "established"
	default:
		return "closed"
	}
}

var ErrNotEstablished = errors.New("realtime channel not established")

// TokenSource yields the access token to join with. It is consulted once per
// connection attempt, so a reconnect authenticates with the freshest
// credential instead of whatever token the session started with.
type TokenSource func() (string, error)

// MessageSink receives every decoded application message, exactly once, in
// arrival order.
type MessageSink interface {
	HandleMessage(env Envelope)
}

// Envelope is the inbound event wire format.
type Envelope struct {
	Typ string          `json:"typ"`
	Dat json.RawMessage `json:"dat"`
}

type joinMessage struct {
	Name string   `json:"name"`
	Data joinData `json:"data"`
}

type joinData struct {
	Token  string `json:"t"`
	GameID string `json:"g"`
}

// handshakeAck is the bare string literal the server sends to confirm a join.
const handshakeAck = "ok"

// Options tunes a channel. Zero values fall back to sane defaults.
type Options struct {
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Dialer        *websocket.Dialer
	OnEstablished func()
	Logger        *slog.Logger
}

// Channel maintains exactly one live, authenticated websocket per session.
// One join is sent per physical connection; after a reconnect the channel
// re-authenticates from scratch.
type Channel struct {
	endpoint string
	sink     MessageSink
	opts     Options

	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewChannel(endpoint string, sink MessageSink, opts Options) *Channel {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{endpoint: endpoint, sink: sink, opts: opts}
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Send writes an application message to the server. While the channel is not
// established the message is dropped and ErrNotEstablished returned; callers
// that treat publishes as best-effort may ignore it.
func (c *Channel) Send(v any) error {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()
	if state != StateEstablished || conn == nil {
		return ErrNotEstablished
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Run connects, authenticates and pumps inbound messages until ctx is done.
// An unexpected close triggers a reconnect with exponential backoff; every
// reconnect is a fresh connect plus a fresh join, with a freshly resolved
// token. Run always returns the ctx error once the session ends.
func (c *Channel) Run(ctx context.Context, token TokenSource, gameID string) error {
	backoff := c.opts.MinBackoff
	for {
		established, err := c.runOnce(ctx, token, gameID)
		if ctx.Err() != nil {
			c.setState(StateClosed, nil)
			return ctx.Err()
		}
		if established {
			backoff = c.opts.MinBackoff
		}
		// The session is still live, so a lost connection leaves the channel
		// connecting, not closed.
		c.setState(StateConnecting, nil)
		c.opts.Logger.Warn("realtime connection lost, reconnecting",
			"error", err,
			"backoff", backoff,
		)
		observability.RecordRealtimeReconnect()
		select {
		case <-ctx.Done():
			c.setState(StateClosed, nil)
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

func (c *Channel) runOnce(ctx context.Context, token TokenSource, gameID string) (established bool, err error) {
	c.setState(StateConnecting, nil)

	accessToken, err := token()
	if err != nil {
		return false, fmt.Errorf("resolve join token: %w", err)
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: status %d: %w", c.endpoint, resp.StatusCode, err)
		}
		return false, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	defer conn.Close()

	// Close the socket as soon as the session ends so the read loop unblocks.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.setState(StateOpen, conn)

	join := joinMessage{Name: "join", Data: joinData{Token: accessToken, GameID: gameID}}
	c.writeMu.Lock()
	err = conn.WriteJSON(join)
	c.writeMu.Unlock()
	if err != nil {
		observability.RecordRealtimeHandshake("join_write_error")
		return false, fmt.Errorf("send join: %w", err)
	}

	return c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) (established bool, err error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return established, fmt.Errorf("read message: %w", err)
		}

		if c.State() == StateOpen {
			// Before the ack, the only expected frame is the handshake
			// reply. Anything else is a protocol acknowledgement, never a
			// game event, and must not reach the sink.
			var ack string
			if json.Unmarshal(data, &ack) == nil && ack == handshakeAck {
				established = true
				c.setState(StateEstablished, conn)
				observability.RecordRealtimeHandshake("success")
				c.opts.Logger.Info("realtime channel established")
				if c.opts.OnEstablished != nil {
					c.opts.OnEstablished()
				}
			} else {
				c.opts.Logger.Debug("dropping pre-handshake frame", "frame", string(data))
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			observability.RecordRealtimeMessage("invalid", "decode_error")
			c.opts.Logger.Warn("undecodable realtime frame", "error", err)
			continue
		}
		c.sink.HandleMessage(env)
	}
}

func (c *Channel) setState(s State, conn *websocket.Conn) {
	c.mu.Lock()
	c.state = s
	c.conn = conn
	c.mu.Unlock()
}
