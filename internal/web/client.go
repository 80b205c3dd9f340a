package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codefionn/livecast/internal/consts"
	"github.com/gorilla/websocket"
)

// ClientOptions tunes a client connection.
type ClientOptions struct {
	// PingInterval is how often a ping is sent. Zero disables keepalive.
	PingInterval time.Duration
	// PingTimeout is how long after a ping the pong may arrive.
	PingTimeout time.Duration
	// MaxMessageBytes caps inbound message size. Zero means no limit.
	MaxMessageBytes int64
}

// Client is a browser websocket connection. It satisfies relay.ClientConn.
//
// Only one goroutine may read and one may write at a time; the relay
// guarantees both. Pings go through WriteControl, which gorilla allows
// concurrently with everything else.
type Client struct {
	conn *websocket.Conn
	opts ClientOptions

	// deadlineMu orders the pong handler against read interruption so a
	// late pong cannot push the deadline back out.
	deadlineMu  sync.Mutex
	interrupted bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps conn and starts the keepalive loop.
func NewClient(conn *websocket.Conn, opts ClientOptions) *Client {
	c := &Client{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}

	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}

	if opts.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		conn.SetPongHandler(func(string) error {
			c.deadlineMu.Lock()
			defer c.deadlineMu.Unlock()
			if c.interrupted {
				return nil
			}
			return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		})
		go c.pingLoop()
	}

	return c
}

func (c *Client) pongWait() time.Duration {
	return c.opts.PingInterval + c.opts.PingTimeout
}

// ReadMessage returns the next text or binary message. If ctx ends first
// the pending read is interrupted and ctx.Err() is returned; the connection
// is not readable afterwards.
func (c *Client) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		c.deadlineMu.Lock()
		defer c.deadlineMu.Unlock()
		c.interrupted = true
		_ = c.conn.SetReadDeadline(time.Now())
	})

	_, data, err := c.conn.ReadMessage()
	if !stop() && err == nil {
		// ctx ended after the message arrived: undo the interrupt
		<-fired
		c.restoreDeadline()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) restoreDeadline() {
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()
	c.interrupted = false
	var deadline time.Time
	if c.opts.PingInterval > 0 {
		deadline = time.Now().Add(c.pongWait())
	}
	_ = c.conn.SetReadDeadline(deadline)
}

// WriteMessage sends data as a text message.
func (c *Client) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(consts.WebsocketWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then closes the socket.
// Later calls do nothing.
func (c *Client) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(consts.WebsocketCloseWait)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			err = werr
		}
		if cerr := c.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(consts.WebsocketWriteWait)); err != nil {
				// the next read fails once the pong deadline passes
				return
			}
		}
	}
}
