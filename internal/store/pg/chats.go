package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// PGChatStore implements store.ChatStore backed by Postgres.
type PGChatStore struct {
	db *sql.DB
}

func NewPGChatStore(db *sql.DB) *PGChatStore {
	return &PGChatStore{db: db}
}

func (s *PGChatStore) Create(ctx context.Context, chat *model.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = store.GenNewID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(chat.Metadata)
	if err != nil {
		return err
	}
	extra, err := json.Marshal(chat.ExtraData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (id, name, external_id, channel_id, assigned_user_id,
		                    last_message_ts, last_sender_type, last_message,
		                    metadata, extra_data, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		chat.ID, chat.Name, chat.ExternalID, chat.ChannelID, chat.AssignedUserID,
		chat.LastMessageTS, string(chat.LastSenderType), chat.LastMessage,
		meta, extra, chat.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

const chatColumns = `id, name, external_id, channel_id, COALESCE(assigned_user_id, ''),
	last_message_ts, COALESCE(last_sender_type, ''), COALESCE(last_message, ''),
	metadata, extra_data, created_at`

func (s *PGChatStore) Get(ctx context.Context, id uuid.UUID) (*model.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	return scanChat(row)
}

func (s *PGChatStore) GetByExternal(ctx context.Context, channelID uuid.UUID, externalID string) (*model.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE channel_id = $1 AND external_id = $2`,
		channelID, externalID)
	return scanChat(row)
}

func (s *PGChatStore) Update(ctx context.Context, chat *model.Chat) error {
	meta, err := json.Marshal(chat.Metadata)
	if err != nil {
		return err
	}
	extra, err := json.Marshal(chat.ExtraData)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET name = $2, assigned_user_id = NULLIF($3, ''),
		        metadata = $4, extra_data = $5
		 WHERE id = $1`,
		chat.ID, chat.Name, chat.AssignedUserID, meta, extra,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateLastMessage is guarded in SQL so a stale writer can never move the
// denormalized fields backwards.
func (s *PGChatStore) UpdateLastMessage(ctx context.Context, chatID uuid.UUID, ts time.Time, sender model.SenderType, preview string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_message_ts = $2, last_sender_type = $3, last_message = $4
		 WHERE id = $1 AND last_message_ts <= $2`,
		chatID, ts, string(sender), preview,
	)
	return err
}

func scanChat(row rowScanner) (*model.Chat, error) {
	var chat model.Chat
	var sender string
	var meta, extra []byte
	err := row.Scan(&chat.ID, &chat.Name, &chat.ExternalID, &chat.ChannelID,
		&chat.AssignedUserID, &chat.LastMessageTS, &sender, &chat.LastMessage,
		&meta, &extra, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chat.LastSenderType = model.SenderType(sender)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &chat.Metadata); err != nil {
			return nil, err
		}
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &chat.ExtraData); err != nil {
			return nil, err
		}
	}
	return &chat, nil
}
