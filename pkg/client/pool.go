package client

import (
	"context"
	"errors"
	"fmt"

	pool "github.com/jolestar/go-commons-pool/v2"

	"github.com/yndnr/memkv/pkg/resp"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Options
	// MaxTotal caps open connections (default: 8).
	MaxTotal int
	// MaxIdle caps idle connections (default: MaxTotal).
	MaxIdle int
}

// Pool hands out Clients connected to one address.
type Pool struct {
	addr string
	pool *pool.ObjectPool
}

// NewPool creates a pool. Connections are dialed on demand.
func NewPool(ctx context.Context, addr string, opts PoolOptions) *Pool {
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = 8
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = opts.MaxTotal
	}
	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = opts.MaxTotal
	cfg.MaxIdle = opts.MaxIdle
	cfg.TestOnBorrow = true
	cfg.TestOnReturn = true

	f := &clientFactory{addr: addr, opts: opts.Options}
	return &Pool{addr: addr, pool: pool.NewObjectPool(ctx, f, cfg)}
}

// Do borrows a client, runs one command and returns the client.
func (p *Pool) Do(ctx context.Context, name string, args ...string) (resp.Reply, error) {
	c, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := c.Do(ctx, name, args...)
	p.Put(ctx, c)
	return reply, err
}

// Get borrows a client. It must be handed back with Put.
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("client pool %s: %w", p.addr, err)
	}
	c, ok := obj.(*Client)
	if !ok {
		return nil, errors.New("client pool: factory made wrong type")
	}
	return c, nil
}

// Put returns a borrowed client. Broken clients are discarded.
func (p *Pool) Put(ctx context.Context, c *Client) {
	if c == nil {
		return
	}
	if !c.Healthy() {
		_ = p.pool.InvalidateObject(ctx, c)
		return
	}
	_ = p.pool.ReturnObject(ctx, c)
}

// Active returns the number of borrowed clients.
func (p *Pool) Active() int {
	return p.pool.GetNumActive()
}

// Idle returns the number of idle clients.
func (p *Pool) Idle() int {
	return p.pool.GetNumIdle()
}

// Close closes every idle client and rejects further borrows.
func (p *Pool) Close(ctx context.Context) {
	p.pool.Close(ctx)
}

type clientFactory struct {
	addr string
	opts Options
}

func (f *clientFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := DialOptions(ctx, f.addr, f.opts)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

func (f *clientFactory) DestroyObject(_ context.Context, obj *pool.PooledObject) error {
	c, ok := obj.Object.(*Client)
	if !ok {
		return errors.New("client pool: unknown object type")
	}
	return c.Close()
}

func (f *clientFactory) ValidateObject(_ context.Context, obj *pool.PooledObject) bool {
	c, ok := obj.Object.(*Client)
	return ok && c.Healthy()
}

func (f *clientFactory) ActivateObject(context.Context, *pool.PooledObject) error {
	return nil
}

func (f *clientFactory) PassivateObject(context.Context, *pool.PooledObject) error {
	return nil
}
