package sqlite

import (
	"context"
	"fmt"
)

func (db *DB) Append(ctx context.Context, userID int64, payload []byte) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO offline_messages (user_id, payload) VALUES (?, ?)",
		userID, payload,
	)
	if err != nil {
		return fmt.Errorf("append offline message for %d: %w", userID, err)
	}
	return nil
}

// DrainAndClear reads and deletes the user's queue in one transaction so a
// concurrent append lands either fully in this drain or fully in the next.
func (db *DB) DrainAndClear(ctx context.Context, userID int64) ([][]byte, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("drain offline for %d: %w", userID, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT payload FROM offline_messages WHERE user_id = ? ORDER BY id", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("drain offline for %d: %w", userID, err)
	}

	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM offline_messages WHERE user_id = ?", userID,
	); err != nil {
		return nil, fmt.Errorf("clear offline for %d: %w", userID, err)
	}
	return payloads, tx.Commit()
}
