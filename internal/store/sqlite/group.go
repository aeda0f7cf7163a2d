package sqlite

import (
	"context"
	"fmt"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

func (db *DB) CreateGroup(ctx context.Context, name, desc string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO groups (name, descr) VALUES (?, ?)", name, desc,
	)
	if err != nil {
		return 0, fmt.Errorf("create group %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (db *DB) AddMembership(ctx context.Context, groupID, userID int64, role model.GroupRole) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)",
		groupID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("add user %d to group %d: %w", userID, groupID, err)
	}
	return nil
}

// QueryGroupsWithMembers returns every group the user belongs to, each with
// its full member roster. Two queries instead of one join keep the scan
// logic simple; group counts per user are small.
func (db *DB) QueryGroupsWithMembers(ctx context.Context, userID int64) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT g.id, g.name, g.descr FROM groups g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups of %d: %w", userID, err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Desc); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := db.queryMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Users = members
	}
	return groups, nil
}

func (db *DB) queryMembers(ctx context.Context, groupID int64) ([]model.GroupMember, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.name, u.state, m.role FROM group_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY u.id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members of group %d: %w", groupID, err)
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.ID, &m.Name, &m.State, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (db *DB) QueryGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id", groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query member ids of group %d: %w", groupID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
