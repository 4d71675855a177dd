package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval     = 25 * time.Second
	defaultReadTimeout      = 90 * time.Second
	defaultHandshakeTimeout = 10 * time.Second

	// controlWriteTimeout bounds a single ping write.
	controlWriteTimeout = 10 * time.Second

	// defaultReadLimit caps one message. EEW frames are a few KB at most.
	defaultReadLimit = 1 << 20
)

// ErrClosed is returned by Next after Close or context cancellation.
var ErrClosed = errors.New("stream: connection closed")

// Frame is one raw message together with its local arrival time.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Conn is an open frame sequence.
type Conn interface {
	// Next blocks until the next frame arrives or the connection ends.
	Next() (Frame, error)
	Close() error
}

// Dialer opens connections. *Client satisfies it; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Options tune keep-alive and handshake behaviour. Zero values take defaults.
type Options struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
}

// Client dials websocket feeds with a fixed set of Options.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	now    func() time.Time // injectable for tests
}

// NewClient returns a Client using opts.
func NewClient(opts Options) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	return &Client{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		now: time.Now,
	}
}

// Dial connects to endpoint and starts the keep-alive loop.
func (c *Client) Dial(ctx context.Context, endpoint string) (Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, endpoint, c.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("stream: dial %s: %w", endpoint, err)
	}

	ws.SetReadLimit(c.opts.ReadLimit)
	ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)) //nolint:errcheck
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	conn := &wsConn{
		ws:          ws,
		readTimeout: c.opts.ReadTimeout,
		now:         c.now,
		done:        make(chan struct{}),
	}
	go conn.keepalive(ctx, c.opts.PingInterval)
	return conn, nil
}

type wsConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
	now         func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) Next() (Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return Frame{}, ErrClosed
		default:
		}
		c.Close() //nolint:errcheck
		return Frame{}, fmt.Errorf("stream: read: %w", err)
	}
	c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)) //nolint:errcheck
	return Frame{Data: data, ReceivedAt: c.now()}, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// keepalive pings the peer until the connection closes or ctx is cancelled.
// WriteControl may run concurrently with ReadMessage.
func (c *wsConn) keepalive(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close() //nolint:errcheck
			return
		case <-c.done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
				c.Close() //nolint:errcheck
				return
			}
		}
	}
}
