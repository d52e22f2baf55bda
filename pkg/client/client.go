package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yndnr/memkv/pkg/resp"
)

// ErrClosed is returned when the client has been closed.
var ErrClosed = errors.New("client: closed")

// Options configures a Client.
type Options struct {
	// DialTimeout bounds connection setup (default: 5s).
	DialTimeout time.Duration
	// Timeout bounds one round trip when the context has no deadline
	// (default: 30s). Zero keeps the default, negative disables it.
	Timeout time.Duration
	// TLS dials over TLS when set.
	TLS *tls.Config
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Client is a single RESP connection. It is safe for concurrent use;
// commands are serialized.
type Client struct {
	addr string
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	closed bool
	broken bool
}

// Dial connects to addr with default options.
func Dial(ctx context.Context, addr string) (*Client, error) {
	return DialOptions(ctx, addr, Options{})
}

// DialOptions connects to addr.
func DialOptions(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	var (
		conn net.Conn
		err  error
	)
	d := &net.Dialer{Timeout: opts.DialTimeout}
	if opts.TLS != nil {
		td := &tls.Dialer{NetDialer: d, Config: opts.TLS}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		addr: addr,
		opts: opts,
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends one command and reads its reply. Server errors come back as
// resp.ErrorReply values, not as Go errors; err is only set for transport
// failures, after which the client is unusable.
func (c *Client) Do(ctx context.Context, name string, args ...string) (resp.Reply, error) {
	return c.roundTrip(ctx, resp.EncodeCommand(name, args...), 1)
}

// Pipeline sends every command before reading any reply.
func (c *Client) Pipeline(ctx context.Context, cmds [][]string) ([]resp.Reply, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	var buf []byte
	for _, cmd := range cmds {
		if len(cmd) == 0 {
			return nil, errors.New("client: empty command in pipeline")
		}
		buf = append(buf, resp.EncodeCommand(cmd[0], cmd[1:]...)...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange(ctx, buf, len(cmds))
}

func (c *Client) roundTrip(ctx context.Context, frame []byte, n int) (resp.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies, err := c.exchange(ctx, frame, n)
	if err != nil {
		return nil, err
	}
	return replies[0], nil
}

// exchange writes frames and reads n replies. Caller holds c.mu.
func (c *Client) exchange(ctx context.Context, frames []byte, n int) ([]resp.Reply, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.broken {
		return nil, fmt.Errorf("client: connection to %s is broken", c.addr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.opts.Timeout > 0 {
		deadline = time.Now().Add(c.opts.Timeout)
	}
	_ = c.conn.SetDeadline(deadline)

	if _, err := c.bw.Write(frames); err != nil {
		return nil, c.fail(err)
	}
	if err := c.bw.Flush(); err != nil {
		return nil, c.fail(err)
	}

	replies := make([]resp.Reply, 0, n)
	for i := 0; i < n; i++ {
		r, err := resp.ReadReply(c.br)
		if err != nil {
			return nil, c.fail(err)
		}
		replies = append(replies, r)
	}
	return replies, nil
}

func (c *Client) fail(err error) error {
	c.broken = true
	return fmt.Errorf("client: %s: %w", c.addr, err)
}

// Healthy reports whether the connection can still be used.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.broken
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
