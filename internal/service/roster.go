package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// rosters assembles the friend and group summaries for a login response.
// Roster reads that fail leave their section empty rather than failing the
// login; the session itself is already established.
func (s *ChatService) rosters(ctx context.Context, userID int64) ([]model.FriendSummary, []model.GroupSummary) {
	var friends []model.FriendSummary
	if users, err := s.store.QueryFriends(ctx, userID); err != nil {
		s.logger.Error("friend roster read failed", "user_id", userID, "error", err)
	} else {
		friends = lo.Map(users, func(u model.User, _ int) model.FriendSummary {
			return model.FriendSummary{ID: u.ID, Name: u.Name, State: u.State}
		})
	}

	var groups []model.GroupSummary
	if gs, err := s.store.QueryGroupsWithMembers(ctx, userID); err != nil {
		s.logger.Error("group roster read failed", "user_id", userID, "error", err)
	} else {
		groups = lo.Map(gs, func(g model.Group, _ int) model.GroupSummary {
			return model.GroupSummary{
				ID:        g.ID,
				GroupName: g.Name,
				GroupDesc: g.Desc,
				Users: lo.Map(g.Users, func(m model.GroupMember, _ int) model.GroupMemberSummary {
					return model.GroupMemberSummary{ID: m.ID, Name: m.Name, State: m.State, Role: m.Role}
				}),
			}
		})
	}

	return friends, groups
}
