// Package store declares the durable collaborator surfaces the routing core
// consumes. The core treats them as externally synchronized: no in-process
// locking is layered on top beyond the check-then-act sequences the session
// rules require.
package store

import (
	"context"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// UserStore persists accounts, presence state and friend edges.
type UserStore interface {
	// QueryUser returns model.ErrNotFound for an unknown id.
	QueryUser(ctx context.Context, id int64) (model.User, error)
	// InsertUser creates an account and returns the assigned id.
	InsertUser(ctx context.Context, name, passwordHash string) (int64, error)
	UpdateUserState(ctx context.Context, id int64, state model.UserState) error
	// ResetAllStates flips every online user back to offline. Run at boot so
	// a crash does not strand presence.
	ResetAllStates(ctx context.Context) error
	QueryFriends(ctx context.Context, id int64) ([]model.User, error)
	// InsertFriendEdge is directed; callers insert both directions if they
	// want symmetry.
	InsertFriendEdge(ctx context.Context, userID, friendID int64) error
}

// GroupStore persists groups and memberships.
type GroupStore interface {
	CreateGroup(ctx context.Context, name, desc string) (int64, error)
	AddMembership(ctx context.Context, groupID, userID int64, role model.GroupRole) error
	QueryGroupsWithMembers(ctx context.Context, userID int64) ([]model.Group, error)
	QueryGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// OfflineStore is the durable per-user FIFO for undeliverable payloads.
type OfflineStore interface {
	Append(ctx context.Context, userID int64, payload []byte) error
	// DrainAndClear returns and deletes the full queue in arrival order,
	// atomically. There are no partial drains.
	DrainAndClear(ctx context.Context, userID int64) ([][]byte, error)
}

// Store aggregates everything a single backend provides.
type Store interface {
	UserStore
	GroupStore
	OfflineStore
	Close() error
}
