package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

func (s *ChatService) handleCreateGroup(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.CreateGroupReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed create-group frame", "conn_id", conn.ID(), "error", err)
		return
	}

	groupID, err := s.CreateGroup(ctx, req.ID, req.GroupName, req.GroupDesc)
	if err != nil {
		s.sendAck(conn, model.Ack{MsgID: model.MsgCreateAck, Errno: model.ErrnoFailure, Errmsg: "group creation failed"})
		return
	}
	s.sendAck(conn, model.Ack{MsgID: model.MsgCreateAck, Errno: model.ErrnoOK, ID: groupID})
}

// CreateGroup creates the group and makes the caller its creator member.
func (s *ChatService) CreateGroup(ctx context.Context, userID int64, name, desc string) (int64, error) {
	groupID, err := s.store.CreateGroup(ctx, name, desc)
	if err != nil {
		return 0, err
	}
	if err := s.store.AddMembership(ctx, groupID, userID, model.RoleCreator); err != nil {
		return 0, err
	}
	return groupID, nil
}

func (s *ChatService) handleAddGroup(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.AddGroupReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed add-group frame", "conn_id", conn.ID(), "error", err)
		return
	}

	if err := s.JoinGroup(ctx, req.ID, req.GroupID); err != nil {
		s.sendAck(conn, model.Ack{MsgID: model.MsgAddGroupAck, Errno: model.ErrnoFailure, Errmsg: "join failed"})
		return
	}
	s.sendAck(conn, model.Ack{MsgID: model.MsgAddGroupAck, Errno: model.ErrnoOK, ID: req.GroupID})
}

// JoinGroup adds a normal membership and invalidates the cached roster.
func (s *ChatService) JoinGroup(ctx context.Context, userID, groupID int64) error {
	if err := s.store.AddMembership(ctx, groupID, userID, model.RoleNormal); err != nil {
		return err
	}
	s.members.Remove(groupID)
	return nil
}

func (s *ChatService) handleGroupChat(ctx context.Context, conn model.Conn, raw []byte, _ time.Time) {
	var req model.GroupChatReq
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("malformed group-chat frame", "conn_id", conn.ID(), "error", err)
		return
	}
	s.DeliverToGroup(ctx, req.ID, req.GroupID, raw)
}

// DeliverToGroup fans the payload out to every member, the sender included
// (self-echo is product behavior). Each member gets an independent delivery
// decision on the shared worker pool; one member's failure never stops the
// rest, and nothing is rolled back.
func (s *ChatService) DeliverToGroup(ctx context.Context, senderID, groupID int64, payload []byte) {
	memberIDs, err := s.memberIDs(ctx, groupID)
	if err != nil {
		s.logger.Error("group roster unavailable, fan-out skipped",
			"group_id", groupID, "sender_id", senderID, "error", err)
		return
	}

	// Handlers run to completion even if the sender drops mid-fan-out.
	fanCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, memberID := range memberIDs {
		memberID := memberID
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := s.deliver(fanCtx, memberID, payload); err != nil {
				s.metrics.Failed()
				s.logger.Warn("delivery degraded",
					"group_id", groupID, "to", memberID, "error", err)
			}
		}
		if err := s.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
}

// memberIDs resolves a group roster through the LRU cache.
func (s *ChatService) memberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	if ids, ok := s.members.Get(groupID); ok {
		return ids, nil
	}
	ids, err := s.store.QueryGroupMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.members.Add(groupID, ids)
	return ids, nil
}
