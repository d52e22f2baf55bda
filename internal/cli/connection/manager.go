package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yndnr/memkv/pkg/client"
	"github.com/yndnr/memkv/pkg/resp"
)

// ErrNotConnected is returned when no server connection is open.
var ErrNotConnected = errors.New("not connected")

// Manager owns the current connection to a memkv server.
type Manager struct {
	mu      sync.Mutex
	current *client.Client
	opts    client.Options
}

// NewManager creates a connection manager that dials with opts.
func NewManager(opts client.Options) *Manager {
	return &Manager{opts: opts}
}

// Connect dials addr and replaces the current connection once the server
// answers COMMAND.
func (m *Manager) Connect(ctx context.Context, addr string) error {
	c, err := client.DialOptions(ctx, addr, m.opts)
	if err != nil {
		return err
	}
	reply, err := c.Do(ctx, "COMMAND")
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	if e, ok := reply.(resp.ErrorReply); ok {
		_ = c.Close()
		return fmt.Errorf("probe %s: %w", addr, e)
	}

	m.mu.Lock()
	old := m.current
	m.current = c
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Disconnect closes the current connection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Addr returns the address of the current connection, or "".
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.Addr()
}

// IsConnected returns true if connected to a server.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Do sends one command on the current connection. A transport failure
// drops the connection.
func (m *Manager) Do(ctx context.Context, name string, args ...string) (resp.Reply, error) {
	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c == nil {
		return nil, ErrNotConnected
	}

	reply, err := c.Do(ctx, name, args...)
	if err != nil {
		m.mu.Lock()
		if m.current == c {
			m.current = nil
		}
		m.mu.Unlock()
		_ = c.Close()
		return nil, err
	}
	return reply, nil
}
