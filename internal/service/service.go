// Package service implements the routing-and-delivery-policy core: the
// dispatch table, the presence/session rules, the per-recipient delivery
// decision and the group fan-out.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/webitel/chat-routing-service/internal/domain/model"
	"github.com/webitel/chat-routing-service/internal/domain/registry"
	"github.com/webitel/chat-routing-service/internal/metrics"
	"github.com/webitel/chat-routing-service/internal/relay"
	"github.com/webitel/chat-routing-service/internal/store"
)

// FrameHandler is the surface the connection gateways program against.
type FrameHandler interface {
	// HandleFrame routes one framed message from a live connection.
	HandleFrame(ctx context.Context, conn model.Conn, raw []byte, at time.Time)
	// HandleDisconnect reacts to a transport-level close notification.
	HandleDisconnect(ctx context.Context, conn model.Conn)
}

const memberCacheSize = 1024

// ChatService owns its collaborators explicitly; nothing here is process-wide
// state, so tests substitute fakes for the store and the bus.
type ChatService struct {
	store    store.Store
	registry registry.Registrar
	relay    relay.Bridger
	metrics  *metrics.Metrics
	logger   *slog.Logger
	table    *Table

	// fan-out workers shared across groups
	pool *ants.Pool
	// group id -> member ids; rosters are read-mostly on the hot path
	members *lru.Cache[int64, []int64]
}

var _ FrameHandler = (*ChatService)(nil)

func NewChatService(
	st store.Store,
	reg registry.Registrar,
	bridge relay.Bridger,
	m *metrics.Metrics,
	logger *slog.Logger,
	fanoutWorkers int,
) (*ChatService, error) {
	pool, err := ants.NewPool(fanoutWorkers)
	if err != nil {
		return nil, err
	}
	members, err := lru.New[int64, []int64](memberCacheSize)
	if err != nil {
		pool.Release()
		return nil, err
	}

	s := &ChatService{
		store:    st,
		registry: reg,
		relay:    bridge,
		metrics:  m,
		logger:   logger,
		table:    NewTable(logger),
		pool:     pool,
		members:  members,
	}

	s.table.Register(model.MsgLogin, s.handleLogin)
	s.table.Register(model.MsgLogout, s.handleLogout)
	s.table.Register(model.MsgRegister, s.handleRegister)
	s.table.Register(model.MsgChat, s.handleChat)
	s.table.Register(model.MsgAddFriend, s.handleAddFriend)
	s.table.Register(model.MsgCreateGroup, s.handleCreateGroup)
	s.table.Register(model.MsgAddGroup, s.handleAddGroup)
	s.table.Register(model.MsgGroupChat, s.handleGroupChat)

	return s, nil
}

// Close releases the fan-out pool.
func (s *ChatService) Close() {
	s.pool.Release()
}

// HandleFrame decodes just enough of the frame to route it.
func (s *ChatService) HandleFrame(ctx context.Context, conn model.Conn, raw []byte, at time.Time) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("dropping unparseable frame", "conn_id", conn.ID(), "error", err)
		return
	}
	s.table.Resolve(env.MsgID)(ctx, conn, raw, at)
}

// sendAck writes an acknowledgement back to the originating connection.
// A write failure here means the client is already gone; the disconnect
// notification will clean up.
func (s *ChatService) sendAck(conn model.Conn, ack any) {
	payload, err := json.Marshal(ack)
	if err != nil {
		s.logger.Error("marshal ack", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		s.logger.Warn("ack write failed", "conn_id", conn.ID(), "error", err)
	}
}
