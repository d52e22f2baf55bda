package redisserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/server/guard"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/resp"
)

const (
	replyLimitExceeded = resp.ErrorReply("ERR protocol limit exceeded")
	replyRateLimited   = resp.ErrorReply("ERR rate limit exceeded")
	replyTooManyConns  = resp.ErrorReply("ERR max number of clients reached")
)

// Executor runs one decoded request frame.
type Executor interface {
	Execute(ctx context.Context, frame [][]byte) resp.Reply
}

// Config holds the Redis server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string
	// ReadTimeout bounds reading the rest of a command once its first byte
	// has arrived (default: 30s).
	ReadTimeout time.Duration
	// WriteTimeout bounds flushing a reply (default: 30s).
	WriteTimeout time.Duration
	// IdleTimeout closes connections that send nothing (default: 5m).
	IdleTimeout time.Duration
	// RateLimit is the number of commands per second allowed per client
	// IP. Zero disables limiting.
	RateLimit float64
	// RateBurst is the bucket size. Zero means one second worth of RateLimit.
	RateBurst int
	// MaxConnections caps concurrent clients. Zero means unlimited.
	MaxConnections int
	// TLS serves connections over TLS when set.
	TLS *tls.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Server represents the Redis protocol server.
type Server struct {
	cfg     *Config
	exec    Executor
	logger  logger.Logger
	metrics *metric.Registry
	limiter *guard.Limiter

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. The server logs under component=redis.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics records connection counts and rate limiting in r.
func WithMetrics(r *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// New creates a new Redis protocol server.
func New(cfg *Config, exec Executor, opts ...Option) (*Server, error) {
	if exec == nil {
		return nil, errors.New("redisserver: nil executor")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:     cfg,
		exec:    exec,
		limiter: guard.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		conns:   make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named(s.logger, "redis")
	return s, nil
}

// Start binds the listener and serves connections in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("redis server listening", "address", ln.Addr().String(), "tls", s.cfg.TLS != nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("redis accept loop stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes client connections and waits for their
// goroutines to return.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		firstErr = err
	}

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		c := newConn(nc)
		if !s.track(c) {
			s.reject(c)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serveConn(ctx, c)
		}()
	}
}

// track registers c, refusing it when the connection cap is reached.
func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	if s.cfg.MaxConnections > 0 && len(s.conns) >= s.cfg.MaxConnections {
		return false
	}
	s.conns[c] = struct{}{}
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
}

func (s *Server) reject(c *Conn) {
	s.logger.Warn("connection refused, too many clients", "remote", c.RemoteAddr())
	_ = c.netConn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	_ = resp.Write(c.bw, replyTooManyConns)
	_ = c.bw.Flush()
	_ = c.Close()
}

func (s *Server) readTimeout() time.Duration {
	if s.cfg.ReadTimeout > 0 {
		return s.cfg.ReadTimeout
	}
	return 30 * time.Second
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.WriteTimeout > 0 {
		return s.cfg.WriteTimeout
	}
	return 30 * time.Second
}

func (s *Server) idleTimeout() time.Duration {
	if s.cfg.IdleTimeout > 0 {
		return s.cfg.IdleTimeout
	}
	return 5 * time.Minute
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	defer c.Close()

	ctx = logger.WithConnID(ctx, c.ID)
	log := s.logger.With("conn_id", c.ID, "remote", c.RemoteAddr().String())
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	ip := c.remoteIP()
	readTimeout := s.readTimeout()
	writeTimeout := s.writeTimeout()
	idleTimeout := s.idleTimeout()

	for {
		// Only wait for the idle timeout when no pipelined request is buffered.
		if c.br.Buffered() == 0 {
			if err := c.netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return
			}
			if _, err := c.br.Peek(1); err != nil {
				s.logReadError(log, err)
				return
			}
		}

		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		frame, err := resp.ReadCommand(c.br)
		if err != nil {
			switch {
			case errors.Is(err, resp.ErrLimitExceeded):
				log.Warn("protocol limit exceeded", "error", err)
				s.writeFinal(c, replyLimitExceeded)
			case errors.Is(err, resp.ErrProtocol):
				log.Debug("protocol error", "error", err)
				s.writeFinal(c, resp.ErrorReply(domain.NewProtocolError(protocolDetail(err)).Reply()))
			default:
				s.logReadError(log, err)
			}
			return
		}

		reply := s.handle(ctx, ip, frame)
		if reply != nil {
			if err := resp.Write(c.bw, reply); err != nil {
				return
			}
		}

		// Replies to a pipelined batch go out together, but never wait
		// on a request that has only partly arrived.
		if resp.HasFrame(c.br) {
			continue
		}
		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := c.bw.Flush(); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}
}

// handle applies the rate limit and runs frame. An empty frame yields nil.
func (s *Server) handle(ctx context.Context, ip string, frame [][]byte) resp.Reply {
	if len(frame) == 0 {
		return nil
	}
	if !s.limiter.Allow(ip) {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		return replyRateLimited
	}
	return s.exec.Execute(ctx, frame)
}

// protocolDetail strips the decoder's prefix from err.
func protocolDetail(err error) string {
	detail := strings.TrimPrefix(err.Error(), resp.ErrProtocol.Error())
	detail = strings.TrimPrefix(detail, ": ")
	if detail == "" {
		return "malformed request"
	}
	return detail
}

// writeFinal sends a last reply before the connection is closed.
func (s *Server) writeFinal(c *Conn, r resp.Reply) {
	_ = c.netConn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	_ = resp.Write(c.bw, r)
	_ = c.bw.Flush()
}

func (s *Server) logReadError(log logger.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		log.Debug("connection timed out")
		return
	}
	log.Debug("connection read error", "error", err)
}
