// Package ws serves the same chat protocol over WebSocket text frames.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webitel/chat-routing-service/internal/service"
)

const writeTimeout = 10 * time.Second

type Gateway struct {
	addr     string
	path     string
	handler  service.FrameHandler
	logger   *slog.Logger
	upgrader websocket.Upgrader

	srv *http.Server
}

func NewGateway(addr, path string, handler service.FrameHandler, logger *slog.Logger) *Gateway {
	return &Gateway{
		addr:    addr,
		path:    path,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (g *Gateway) Start(context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(g.path, g.serveWS)
	g.srv = &http.Server{Addr: g.addr, Handler: mux}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("ws server stopped", "error", err)
		}
	}()
	g.logger.Info("ws gateway listening", "addr", g.addr, "path", g.path)
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	if g.srv != nil {
		return g.srv.Shutdown(ctx)
	}
	return nil
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("ws upgrade failed", "error", err)
		return
	}

	conn := newConn(ws)
	ctx := context.Background()

	defer func() {
		g.handler.HandleDisconnect(ctx, conn)
		conn.Close()
	}()

	g.logger.Debug("ws opened", "conn_id", conn.ID(), "remote", r.RemoteAddr)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("ws read loop ended", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		if len(raw) == 0 {
			continue
		}
		g.handler.HandleFrame(ctx, conn, raw, time.Now())
	}
}

// conn adapts one WebSocket to the core's handle contract.
type conn struct {
	id string
	mu sync.Mutex
	ws *websocket.Conn
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{id: uuid.NewString(), ws: ws}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) Close() error {
	return c.ws.Close()
}
