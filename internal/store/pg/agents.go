package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// PGAgentStore implements store.AgentStore backed by Postgres.
type PGAgentStore struct {
	db *sql.DB
}

func NewPGAgentStore(db *sql.DB) *PGAgentStore {
	return &PGAgentStore{db: db}
}

func (s *PGAgentStore) Create(ctx context.Context, agent *model.Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, webhook_url, is_fire_and_forget,
		                     buffer_time_seconds, history_msg_count, recent_msg_window_minutes,
		                     activate_for_new_conversation, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		agent.ID, agent.Name, agent.WebhookURL, agent.FireAndForget,
		agent.BufferTimeSeconds, agent.HistoryMsgCount, agent.RecentMsgWindowMinutes,
		agent.ActivateForNewConversation, agent.Active,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

const agentColumns = `id, name, webhook_url, is_fire_and_forget,
	buffer_time_seconds, history_msg_count, recent_msg_window_minutes,
	activate_for_new_conversation, is_active`

func (s *PGAgentStore) Get(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *PGAgentStore) ListEligible(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE is_active = true AND webhook_url <> ''
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var agent model.Agent
	err := row.Scan(&agent.ID, &agent.Name, &agent.WebhookURL, &agent.FireAndForget,
		&agent.BufferTimeSeconds, &agent.HistoryMsgCount, &agent.RecentMsgWindowMinutes,
		&agent.ActivateForNewConversation, &agent.Active)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}
