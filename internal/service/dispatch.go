package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// Handler processes one decoded frame. The raw frame travels alongside the
// connection so chat payloads can be forwarded verbatim.
type Handler func(ctx context.Context, conn model.Conn, raw []byte, at time.Time)

// Table maps a message-type identifier to its handler. Populated once at
// construction; read-only afterwards, so lookups need no lock.
type Table struct {
	handlers map[int]Handler
	logger   *slog.Logger
}

func NewTable(logger *slog.Logger) *Table {
	return &Table{
		handlers: make(map[int]Handler),
		logger:   logger,
	}
}

func (t *Table) Register(msgID int, h Handler) {
	t.handlers[msgID] = h
}

// Resolve returns the registered handler, or a fallback that logs the
// unknown type and does nothing else. A malformed or version-skewed message
// must not terminate a connection or the process.
func (t *Table) Resolve(msgID int) Handler {
	if h, ok := t.handlers[msgID]; ok {
		return h
	}
	return func(context.Context, model.Conn, []byte, time.Time) {
		t.logger.Error("no handler for message type", "msgid", msgID)
	}
}
