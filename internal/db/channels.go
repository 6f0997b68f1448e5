package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Channel is a monitored Telegram source. LastMessageID is the scan
// cursor: the highest message id durably handled, only ever moving
// forward. IsQuiz routes the channel's photos to the quiz pipeline instead
// of the document pipeline.
type Channel struct {
	ID            string
	TGPeerID      int64
	AccessHash    int64
	Username      string
	Title         string
	IsActive      bool
	IsQuiz        bool
	LastMessageID int64
	LastScanAt    time.Time
}

func (db *DB) GetActiveChannels(ctx context.Context) ([]Channel, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tg_peer_id, access_hash, username, title, is_active, is_quiz,
			last_message_id, last_scan_at
		FROM channels
		WHERE is_active
		ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("get active channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("get active channels: %w", err)
		}
		channels = append(channels, *channel)
	}

	return channels, rows.Err()
}

func (db *DB) GetChannelByUsername(ctx context.Context, username string) (*Channel, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, tg_peer_id, access_hash, username, title, is_active, is_quiz,
			last_message_id, last_scan_at
		FROM channels
		WHERE username = $1`, username)

	channel, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel by username: %w", err)
	}

	return channel, nil
}

func (db *DB) AddChannel(ctx context.Context, username string, isQuiz bool) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO channels (username, is_quiz)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET is_active = TRUE, is_quiz = $2`,
		username, isQuiz)
	if err != nil {
		return fmt.Errorf("add channel: %w", err)
	}

	return nil
}

func (db *DB) DeactivateChannel(ctx context.Context, username string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE channels SET is_active = FALSE WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}

	return nil
}

// UpdateChannelPeer stores the resolved Telegram peer identity so later
// scans skip username resolution.
func (db *DB) UpdateChannelPeer(ctx context.Context, id string, peerID, accessHash int64, title string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE channels SET tg_peer_id = $2, access_hash = $3, title = COALESCE(NULLIF($4, ''), title)
		WHERE id = $1`,
		toUUID(id), peerID, accessHash, title)
	if err != nil {
		return fmt.Errorf("update channel peer: %w", err)
	}

	return nil
}

// UpdateChannelCursor advances the scan cursor. GREATEST keeps the cursor
// monotonic even if a stale pass commits after a newer one.
func (db *DB) UpdateChannelCursor(ctx context.Context, id string, maxMessageID int64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE channels SET
			last_message_id = GREATEST(last_message_id, $2),
			last_scan_at = NOW()
		WHERE id = $1`,
		toUUID(id), maxMessageID)
	if err != nil {
		return fmt.Errorf("update channel cursor: %w", err)
	}

	return nil
}

func scanChannel(row pgx.Row) (*Channel, error) {
	var (
		c          Channel
		id         pgtype.UUID
		peerID     pgtype.Int8
		accessHash pgtype.Int8
		title      pgtype.Text
		lastScan   pgtype.Timestamptz
	)

	err := row.Scan(&id, &peerID, &accessHash, &c.Username, &title,
		&c.IsActive, &c.IsQuiz, &c.LastMessageID, &lastScan)
	if err != nil {
		return nil, err
	}

	c.ID = fromUUID(id)
	c.TGPeerID = peerID.Int64
	c.AccessHash = accessHash.Int64
	c.Title = title.String
	c.LastScanAt = lastScan.Time

	return &c, nil
}
