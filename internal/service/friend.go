package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// Friend edges are directed; the client inserts both directions when it
// wants symmetry. The operation carries no acknowledgement.
func (s *ChatService) handleAddFriend(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.AddFriendReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed add-friend frame", "conn_id", conn.ID(), "error", err)
		return
	}
	if err := s.store.InsertFriendEdge(ctx, req.ID, req.FriendID); err != nil {
		s.logger.Warn("friend edge insert failed",
			"user_id", req.ID, "friend_id", req.FriendID, "error", err)
	}
}
