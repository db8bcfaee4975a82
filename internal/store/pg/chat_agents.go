package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// PGChatAgentStore implements store.ChatAgentStore backed by Postgres.
type PGChatAgentStore struct {
	db *sql.DB
}

func NewPGChatAgentStore(db *sql.DB) *PGChatAgentStore {
	return &PGChatAgentStore{db: db}
}

func (s *PGChatAgentStore) Create(ctx context.Context, ca *model.ChatAgent) error {
	if ca.ID == uuid.Nil {
		ca.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_agents (id, chat_id, agent_id, active)
		 VALUES ($1, $2, $3, $4)`,
		ca.ID, ca.ChatID, ca.AgentID, ca.Active,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGChatAgentStore) Get(ctx context.Context, id uuid.UUID) (*model.ChatAgent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, agent_id, active FROM chat_agents WHERE id = $1`, id)
	return scanChatAgent(row)
}

func (s *PGChatAgentStore) ListByChat(ctx context.Context, chatID uuid.UUID) ([]model.ChatAgent, error) {
	return s.listByChat(ctx,
		`SELECT id, chat_id, agent_id, active FROM chat_agents WHERE chat_id = $1 ORDER BY id`,
		chatID)
}

func (s *PGChatAgentStore) ListActiveByChat(ctx context.Context, chatID uuid.UUID) ([]model.ChatAgent, error) {
	return s.listByChat(ctx,
		`SELECT id, chat_id, agent_id, active FROM chat_agents
		 WHERE chat_id = $1 AND active = true ORDER BY id`,
		chatID)
}

func (s *PGChatAgentStore) listByChat(ctx context.Context, query string, chatID uuid.UUID) ([]model.ChatAgent, error) {
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.ChatAgent
	for rows.Next() {
		ca, err := scanChatAgent(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *ca)
	}
	return assignments, rows.Err()
}

func (s *PGChatAgentStore) Update(ctx context.Context, ca *model.ChatAgent) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_agents SET active = $2 WHERE id = $1`, ca.ID, ca.Active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanChatAgent(row rowScanner) (*model.ChatAgent, error) {
	var ca model.ChatAgent
	err := row.Scan(&ca.ID, &ca.ChatID, &ca.AgentID, &ca.Active)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ca, nil
}
