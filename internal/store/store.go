// Package store defines the persistence boundary of the hub: narrow
// find/create/update interfaces over the canonical model, with a Postgres
// backend in store/pg and an in-memory backend for tests and dev mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	// Callers racing on (channel_id, external_id) or (chat_id, agent_id)
	// treat it as "someone else won" and re-read.
	ErrDuplicate = errors.New("store: duplicate")
)

// GenNewID returns a time-ordered UUID for new rows.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ChannelStore persists connected platform endpoints.
type ChannelStore interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	List(ctx context.Context) ([]model.Channel, error)
}

// ChatStore persists conversation threads.
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	Get(ctx context.Context, id uuid.UUID) (*model.Chat, error)
	// GetByExternal looks a chat up by its idempotency key.
	GetByExternal(ctx context.Context, channelID uuid.UUID, externalID string) (*model.Chat, error)
	Update(ctx context.Context, chat *model.Chat) error
	// UpdateLastMessage denormalizes the newest message onto the chat.
	// A write with a timestamp older than the stored one is a no-op; the
	// denormalized fields never regress.
	UpdateLastMessage(ctx context.Context, chatID uuid.UUID, ts time.Time, sender model.SenderType, preview string) error
}

// MessageStore persists conversation content.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// GetByExternalID resolves a provider-assigned message id, used by
	// delivery-status callbacks.
	GetByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	Update(ctx context.Context, msg *model.Message) error
	// ListRecent returns up to limit messages for the chat with timestamp
	// >= since, ordered oldest to newest. The limit keeps the newest
	// messages, not the oldest.
	ListRecent(ctx context.Context, chatID uuid.UUID, limit int, since time.Time) ([]model.Message, error)
}

// AgentStore persists external webhook responders.
type AgentStore interface {
	Create(ctx context.Context, agent *model.Agent) error
	Get(ctx context.Context, id uuid.UUID) (*model.Agent, error)
	// ListEligible returns active agents with a non-empty webhook URL,
	// the population considered for auto-assignment to new chats.
	ListEligible(ctx context.Context) ([]model.Agent, error)
}

// ChatAgentStore persists agent-to-chat assignments.
type ChatAgentStore interface {
	Create(ctx context.Context, ca *model.ChatAgent) error
	Get(ctx context.Context, id uuid.UUID) (*model.ChatAgent, error)
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]model.ChatAgent, error)
	ListActiveByChat(ctx context.Context, chatID uuid.UUID) ([]model.ChatAgent, error)
	Update(ctx context.Context, ca *model.ChatAgent) error
}

// Stores is the top-level container handed to the hub, dispatcher and sender.
type Stores struct {
	Channels   ChannelStore
	Chats      ChatStore
	Messages   MessageStore
	Agents     AgentStore
	ChatAgents ChatAgentStore
}
