package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/webitel/chat-routing-service/internal/domain/model"
	"github.com/webitel/chat-routing-service/internal/metrics"
)

func (s *ChatService) handleChat(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.ChatReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed chat frame", "conn_id", conn.ID(), "error", err)
		return
	}

	// Fire-and-forget from the sender's perspective: a degraded delivery is
	// logged and skipped, never escalated as a hard failure.
	if err := s.DirectMessage(ctx, req.To, raw); err != nil {
		s.metrics.Failed()
		s.logger.Warn("delivery degraded", "to", req.To, "error", err)
	}
}

// DirectMessage routes one payload to one recipient through the three-tier
// decision. The payload is the full frame as received, echoed verbatim.
func (s *ChatService) DirectMessage(ctx context.Context, to int64, payload []byte) error {
	return s.deliver(ctx, to, payload)
}

// deliver is the core delivery-path decision, applied identically by direct
// messages, group fan-out and relayed traffic:
//
//  1. live local connection
//  2. persisted presence online -> relay publish to the holding node
//  3. offline queue
//
// A relay publish failure (bus down, breaker open) degrades to tier 3 rather
// than dropping the payload.
func (s *ChatService) deliver(ctx context.Context, userID int64, payload []byte) error {
	if s.registry.LookupAndSend(userID, payload) {
		s.metrics.Delivered(metrics.PathLocal)
		return nil
	}

	user, err := s.store.QueryUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.State == model.StateOnline {
		if err := s.relay.Publish(ctx, userID, payload); err == nil {
			s.metrics.Delivered(metrics.PathRelay)
			return nil
		} else {
			s.logger.Warn("relay publish failed, queueing offline",
				"user_id", userID, "error", err)
		}
	}

	if err := s.store.Append(ctx, userID, payload); err != nil {
		return err
	}
	s.metrics.Delivered(metrics.PathOffline)
	return nil
}
