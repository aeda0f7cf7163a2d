// Package tcp accepts newline-delimited JSON frames over plain TCP, the
// original transport of the chat protocol.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/chat-routing-service/internal/service"
)

const (
	maxFrameSize = 1 << 20
	writeTimeout = 10 * time.Second
)

type Gateway struct {
	addr    string
	handler service.FrameHandler
	logger  *slog.Logger

	ln net.Listener
}

func NewGateway(addr string, handler service.FrameHandler, logger *slog.Logger) *Gateway {
	return &Gateway{addr: addr, handler: handler, logger: logger}
}

// Start binds the listener and serves connections in the background.
func (g *Gateway) Start(context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	g.ln = ln
	g.logger.Info("tcp gateway listening", "addr", g.addr)
	go g.acceptLoop()
	return nil
}

// Addr reports the bound listen address, for ":0" style configs.
func (g *Gateway) Addr() net.Addr {
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

func (g *Gateway) Stop(context.Context) error {
	if g.ln != nil {
		return g.ln.Close()
	}
	return nil
}

func (g *Gateway) acceptLoop() {
	for {
		netConn, err := g.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			g.logger.Warn("accept failed", "error", err)
			continue
		}
		go g.serve(netConn)
	}
}

// serve is the per-connection worker context: one goroutine reading frames,
// running each handler to completion before the next read.
func (g *Gateway) serve(netConn net.Conn) {
	conn := newConn(netConn)
	ctx := context.Background()

	defer func() {
		g.handler.HandleDisconnect(ctx, conn)
		conn.Close()
	}()

	g.logger.Debug("client connected", "conn_id", conn.ID(), "remote", netConn.RemoteAddr())

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer; the frame outlives this iteration.
		raw := make([]byte, len(line))
		copy(raw, line)
		g.handler.HandleFrame(ctx, conn, raw, time.Now())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		g.logger.Debug("read loop ended", "conn_id", conn.ID(), "error", err)
	}
}

// conn adapts one TCP socket to the core's handle contract.
type conn struct {
	id  string
	mu  sync.Mutex
	raw net.Conn
}

func newConn(raw net.Conn) *conn {
	return &conn{id: uuid.NewString(), raw: raw}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.raw.Write(payload); err != nil {
		return err
	}
	_, err := c.raw.Write([]byte{'\n'})
	return err
}

func (c *conn) Close() error {
	return c.raw.Close()
}
