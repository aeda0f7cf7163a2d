// Package sqlite backs the store contracts with a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/webitel/chat-routing-service/internal/domain/model"
	"github.com/webitel/chat-routing-service/internal/store"
)

type DB struct {
	conn *sql.DB
}

var _ store.Store = (*DB)(nil)

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'offline'
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			user_id INTEGER NOT NULL,
			friend_id INTEGER NOT NULL,
			UNIQUE(user_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			descr TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL DEFAULT 'normal',
			UNIQUE(group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS offline_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offline_user ON offline_messages(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_group ON group_members(group_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func (db *DB) QueryUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, name, password, state FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &u.Password, &u.State)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user %d: %w", id, err)
	}
	return u, nil
}

func (db *DB) InsertUser(ctx context.Context, name, passwordHash string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (name, password, state) VALUES (?, ?, ?)",
		name, passwordHash, model.StateOffline,
	)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (db *DB) UpdateUserState(ctx context.Context, id int64, state model.UserState) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE users SET state = ? WHERE id = ?", state, id,
	)
	if err != nil {
		return fmt.Errorf("update state of user %d: %w", id, err)
	}
	return nil
}

func (db *DB) ResetAllStates(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE users SET state = ? WHERE state = ?", model.StateOffline, model.StateOnline,
	)
	if err != nil {
		return fmt.Errorf("reset states: %w", err)
	}
	return nil
}

func (db *DB) QueryFriends(ctx context.Context, id int64) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.name, u.state FROM friends f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ? ORDER BY u.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query friends of %d: %w", id, err)
	}
	defer rows.Close()

	var friends []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.State); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

func (db *DB) InsertFriendEdge(ctx context.Context, userID, friendID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)",
		userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("insert friend edge %d->%d: %w", userID, friendID, err)
	}
	return nil
}
