package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/memkv/pkg/resp"
)

// ============================================================================
// Fake server
// ============================================================================

// fakeServer answers ECHO with a bulk string, FAIL with an error reply and
// DROP by closing the connection.
type fakeServer struct {
	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	s := &fakeServer{ln: ln}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			br := bufio.NewReader(c)
			bw := bufio.NewWriter(c)
			for {
				frame, err := resp.ReadCommand(br)
				if err != nil {
					return
				}
				var r resp.Reply
				switch strings.ToUpper(string(frame[0])) {
				case "ECHO":
					r = resp.BulkString(frame[1])
				case "FAIL":
					r = resp.ErrorReply("ERR failed")
				case "DROP":
					return
				default:
					r = resp.OK
				}
				_ = resp.Write(bw, r)
				if br.Buffered() == 0 {
					_ = bw.Flush()
				}
			}
		}()
	}
}

// ============================================================================
// Client
// ============================================================================

func TestClient_Do(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, s.addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	r, err := c.Do(ctx, "ECHO", "line\r\nbreak")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if r != resp.BulkString("line\r\nbreak") {
		t.Errorf("ECHO = %#v", r)
	}

	r, err = c.Do(ctx, "FAIL")
	if err != nil {
		t.Fatalf("Do(FAIL) error = %v", err)
	}
	if r != resp.ErrorReply("ERR failed") {
		t.Errorf("FAIL = %#v, want error reply", r)
	}
	if !c.Healthy() {
		t.Error("error reply should not break the client")
	}
}

func TestClient_Pipeline(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, s.addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	replies, err := c.Pipeline(ctx, [][]string{{"ECHO", "a"}, {"FAIL"}, {"ECHO", "b"}})
	if err != nil {
		t.Fatalf("Pipeline() error = %v", err)
	}
	want := []resp.Reply{resp.BulkString("a"), resp.ErrorReply("ERR failed"), resp.BulkString("b")}
	if len(replies) != len(want) {
		t.Fatalf("got %d replies, want %d", len(replies), len(want))
	}
	for i := range want {
		if replies[i] != want[i] {
			t.Errorf("reply %d = %#v, want %#v", i, replies[i], want[i])
		}
	}

	if _, err := c.Pipeline(ctx, [][]string{{}}); err == nil {
		t.Error("empty command should be rejected")
	}
}

func TestClient_BrokenAfterDisconnect(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, s.addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Do(ctx, "DROP"); err == nil {
		t.Fatal("Do(DROP) should fail")
	}
	if c.Healthy() {
		t.Error("client should be broken")
	}
	if _, err := c.Do(ctx, "ECHO", "x"); err == nil {
		t.Error("broken client should refuse commands")
	}
}

func TestClient_Closed(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, s.addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.Do(ctx, "ECHO", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Do() after Close error = %v, want ErrClosed", err)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	s := newFakeServer(t)

	c, err := Dial(context.Background(), s.addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Do(ctx, "ECHO", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialOptions(context.Background(), addr, Options{DialTimeout: time.Second})
	if err == nil {
		t.Fatal("Dial() to closed port should fail")
	}
}

// ============================================================================
// Pool
// ============================================================================

func TestPool_ReusesConnections(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	p := NewPool(ctx, s.addr(), PoolOptions{MaxTotal: 2})
	defer p.Close(ctx)

	for i := 0; i < 10; i++ {
		r, err := p.Do(ctx, "ECHO", "x")
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if r != resp.BulkString("x") {
			t.Fatalf("Do() = %#v", r)
		}
	}
	if got := s.accepted(); got != 1 {
		t.Errorf("server accepted %d connections, want 1", got)
	}
	if p.Active() != 0 || p.Idle() != 1 {
		t.Errorf("Active=%d Idle=%d, want 0 and 1", p.Active(), p.Idle())
	}
}

func TestPool_DiscardsBrokenClients(t *testing.T) {
	s := newFakeServer(t)
	ctx := context.Background()

	p := NewPool(ctx, s.addr(), PoolOptions{MaxTotal: 1})
	defer p.Close(ctx)

	if _, err := p.Do(ctx, "DROP"); err == nil {
		t.Fatal("Do(DROP) should fail")
	}
	if p.Idle() != 0 {
		t.Errorf("Idle() = %d, want 0 after broken client", p.Idle())
	}

	r, err := p.Do(ctx, "ECHO", "again")
	if err != nil {
		t.Fatalf("Do() after broken client error = %v", err)
	}
	if r != resp.BulkString("again") {
		t.Errorf("Do() = %#v", r)
	}
	if got := s.accepted(); got != 2 {
		t.Errorf("server accepted %d connections, want 2", got)
	}
}
