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

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Create(ctx context.Context, msg *model.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return err
	}
	var status *string
	if msg.DeliveryStatus != nil {
		st := string(*msg.DeliveryStatus)
		status = &st
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, external_id, chat_id, content, sender_type,
		                       timestamp, metadata, read, delivery_status)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.ExternalID, msg.ChatID, msg.Content, string(msg.SenderType),
		msg.Timestamp, meta, msg.Read, status,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

const messageColumns = `id, COALESCE(external_id, ''), chat_id, content, sender_type,
	timestamp, metadata, read, delivery_status`

func (s *PGMessageStore) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

func (s *PGMessageStore) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	if externalID == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = $1
		 ORDER BY timestamp DESC LIMIT 1`, externalID)
	return scanMessage(row)
}

func (s *PGMessageStore) Update(ctx context.Context, msg *model.Message) error {
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return err
	}
	var status *string
	if msg.DeliveryStatus != nil {
		st := string(*msg.DeliveryStatus)
		status = &st
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET external_id = NULLIF($2, ''), metadata = $3,
		        read = $4, delivery_status = $5
		 WHERE id = $1`,
		msg.ID, msg.ExternalID, meta, msg.Read, status,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListRecent keeps the newest limit messages inside the window and returns
// them oldest first, the order agents expect history in.
func (s *PGMessageStore) ListRecent(ctx context.Context, chatID uuid.UUID, limit int, since time.Time) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT * FROM (
		   SELECT `+messageColumns+` FROM messages
		   WHERE chat_id = $1 AND timestamp >= $2
		   ORDER BY timestamp DESC LIMIT $3
		 ) recent ORDER BY timestamp ASC`,
		chatID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var msg model.Message
	var sender string
	var meta []byte
	var status *string
	err := row.Scan(&msg.ID, &msg.ExternalID, &msg.ChatID, &msg.Content, &sender,
		&msg.Timestamp, &meta, &msg.Read, &status)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg.SenderType = model.SenderType(sender)
	if status != nil {
		ds := model.DeliveryStatus(*status)
		msg.DeliveryStatus = &ds
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}
