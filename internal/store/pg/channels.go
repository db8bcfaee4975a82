package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// PGChannelStore implements store.ChannelStore backed by Postgres.
type PGChannelStore struct {
	db *sql.DB
}

func NewPGChannelStore(db *sql.DB) *PGChannelStore {
	return &PGChannelStore{db: db}
}

func (s *PGChannelStore) Create(ctx context.Context, ch *model.Channel) error {
	if ch.ID == uuid.Nil {
		ch.ID = store.GenNewID()
	}
	creds, err := json.Marshal(ch.Credentials)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, platform, credentials, send_api_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		ch.ID, ch.Name, ch.Platform, creds, ch.SendAPIURL,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGChannelStore) Get(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, platform, credentials, send_api_url, created_at
		 FROM channels WHERE id = $1`, id)
	return scanChannel(row)
}

func (s *PGChannelStore) List(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, platform, credentials, send_api_url, created_at
		 FROM channels ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	var ch model.Channel
	var creds []byte
	err := row.Scan(&ch.ID, &ch.Name, &ch.Platform, &creds, &ch.SendAPIURL, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &ch.Credentials); err != nil {
			return nil, err
		}
	}
	return &ch, nil
}
