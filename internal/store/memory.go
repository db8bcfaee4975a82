package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// NewMemoryStores creates all stores backed by process memory. Used by tests
// and by serve when no Postgres DSN is configured. The unique constraints
// match the Postgres schema so races behave the same way in both backends.
func NewMemoryStores() *Stores {
	return &Stores{
		Channels:   &memChannelStore{rows: map[uuid.UUID]model.Channel{}},
		Chats:      &memChatStore{rows: map[uuid.UUID]model.Chat{}, byExternal: map[chatKey]uuid.UUID{}},
		Messages:   &memMessageStore{rows: map[uuid.UUID]model.Message{}},
		Agents:     &memAgentStore{rows: map[uuid.UUID]model.Agent{}},
		ChatAgents: &memChatAgentStore{rows: map[uuid.UUID]model.ChatAgent{}, byPair: map[pairKey]uuid.UUID{}},
	}
}

type chatKey struct {
	channelID  uuid.UUID
	externalID string
}

type pairKey struct {
	chatID  uuid.UUID
	agentID uuid.UUID
}

type memChannelStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Channel
}

func (s *memChannelStore) Create(_ context.Context, ch *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.ID == uuid.Nil {
		ch.ID = GenNewID()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.rows[ch.ID]; ok {
		return ErrDuplicate
	}
	s.rows[ch.ID] = *ch
	return nil
}

func (s *memChannelStore) Get(_ context.Context, id uuid.UUID) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ch, nil
}

func (s *memChannelStore) List(_ context.Context) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Channel, 0, len(s.rows))
	for _, ch := range s.rows {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memChatStore struct {
	mu         sync.RWMutex
	rows       map[uuid.UUID]model.Chat
	byExternal map[chatKey]uuid.UUID
}

func (s *memChatStore) Create(_ context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chatKey{chat.ChannelID, chat.ExternalID}
	if _, ok := s.byExternal[key]; ok {
		return ErrDuplicate
	}
	if chat.ID == uuid.Nil {
		chat.ID = GenNewID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	s.rows[chat.ID] = *chat
	s.byExternal[key] = chat.ID
	return nil
}

func (s *memChatStore) Get(_ context.Context, id uuid.UUID) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &chat, nil
}

func (s *memChatStore) GetByExternal(_ context.Context, channelID uuid.UUID, externalID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[chatKey{channelID, externalID}]
	if !ok {
		return nil, ErrNotFound
	}
	chat := s.rows[id]
	return &chat, nil
}

func (s *memChatStore) Update(_ context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[chat.ID]; !ok {
		return ErrNotFound
	}
	s.rows[chat.ID] = *chat
	return nil
}

func (s *memChatStore) UpdateLastMessage(_ context.Context, chatID uuid.UUID, ts time.Time, sender model.SenderType, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.rows[chatID]
	if !ok {
		return ErrNotFound
	}
	if ts.Before(chat.LastMessageTS) {
		return nil
	}
	chat.LastMessageTS = ts
	chat.LastSenderType = sender
	chat.LastMessage = preview
	s.rows[chatID] = chat
	return nil
}

type memMessageStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Message
}

func (s *memMessageStore) Create(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = GenNewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if _, ok := s.rows[msg.ID]; ok {
		return ErrDuplicate
	}
	s.rows[msg.ID] = *msg
	return nil
}

func (s *memMessageStore) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

func (s *memMessageStore) GetByExternalID(_ context.Context, externalID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if externalID == "" {
		return nil, ErrNotFound
	}
	for _, msg := range s.rows {
		if msg.ExternalID == externalID {
			m := msg
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memMessageStore) Update(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[msg.ID]; !ok {
		return ErrNotFound
	}
	s.rows[msg.ID] = *msg
	return nil
}

func (s *memMessageStore) ListRecent(_ context.Context, chatID uuid.UUID, limit int, since time.Time) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, msg := range s.rows {
		if msg.ChatID == chatID && !msg.Timestamp.Before(since) {
			out = append(out, msg)
		}
	}
	// Newest first to apply the limit, then flip to chronological order.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type memAgentStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Agent
}

func (s *memAgentStore) Create(_ context.Context, agent *model.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == uuid.Nil {
		agent.ID = GenNewID()
	}
	if _, ok := s.rows[agent.ID]; ok {
		return ErrDuplicate
	}
	s.rows[agent.ID] = *agent
	return nil
}

func (s *memAgentStore) Get(_ context.Context, id uuid.UUID) (*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &agent, nil
}

func (s *memAgentStore) ListEligible(_ context.Context) ([]model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Agent
	for _, agent := range s.rows {
		if agent.Active && agent.WebhookURL != "" {
			out = append(out, agent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memChatAgentStore struct {
	mu     sync.RWMutex
	rows   map[uuid.UUID]model.ChatAgent
	byPair map[pairKey]uuid.UUID
}

func (s *memChatAgentStore) Create(_ context.Context, ca *model.ChatAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{ca.ChatID, ca.AgentID}
	if _, ok := s.byPair[key]; ok {
		return ErrDuplicate
	}
	if ca.ID == uuid.Nil {
		ca.ID = GenNewID()
	}
	s.rows[ca.ID] = *ca
	s.byPair[key] = ca.ID
	return nil
}

func (s *memChatAgentStore) Get(_ context.Context, id uuid.UUID) (*model.ChatAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ca, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ca, nil
}

func (s *memChatAgentStore) ListByChat(_ context.Context, chatID uuid.UUID) ([]model.ChatAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ChatAgent
	for _, ca := range s.rows {
		if ca.ChatID == chatID {
			out = append(out, ca)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *memChatAgentStore) ListActiveByChat(ctx context.Context, chatID uuid.UUID) ([]model.ChatAgent, error) {
	all, err := s.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, ca := range all {
		if ca.Active {
			out = append(out, ca)
		}
	}
	return out, nil
}

func (s *memChatAgentStore) Update(_ context.Context, ca *model.ChatAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[ca.ID]; !ok {
		return ErrNotFound
	}
	s.rows[ca.ID] = *ca
	return nil
}
