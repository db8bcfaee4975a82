// Package dispatch implements the per-(chat, agent) debounce engine: every new
// inbound message re-arms a delayed check, and only a check that still sees a
// quiet chat at fire time assembles history and delivers it to the agent.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/jobs"
	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// Deliverer is the retrying webhook POST the dispatcher hands payloads to.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload any) bool
}

// chatRef identifies the conversation inside the agent webhook payload.
type chatRef struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	ChannelID  string `json:"channel_id"`
}

// historyItem is one message reduced to the agent webhook contract.
type historyItem struct {
	ID         string         `json:"id"`
	ExternalID string         `json:"external_id,omitempty"`
	ChatID     string         `json:"chat_id"`
	Content    string         `json:"content"`
	Timestamp  string         `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type webhookPayload struct {
	Chat     chatRef       `json:"chat"`
	Messages []historyItem `json:"messages"`
}

// Dispatcher owns the debounce state machine. It keeps no per-pair state of
// its own; staleness is detected reactively by comparing the chat's
// last-message timestamp against the quiet-window cutoff at fire time.
type Dispatcher struct {
	stores    *store.Stores
	queue     jobs.Queue
	deliverer Deliverer
	now       func() time.Time
}

func NewDispatcher(stores *store.Stores, queue jobs.Queue, deliverer Deliverer) *Dispatcher {
	return &Dispatcher{
		stores:    stores,
		queue:     queue,
		deliverer: deliverer,
		now:       time.Now,
	}
}

// ReArm schedules a dispatch check for one (chat, agent) pair at
// now + buffer_time_seconds. Inactive assignments, inactive agents and agents
// without a webhook URL are terminal no-ops: nothing is scheduled.
func (d *Dispatcher) ReArm(ctx context.Context, chat *model.Chat, ca *model.ChatAgent) {
	if !ca.Active {
		return
	}
	agent, err := d.stores.Agents.Get(ctx, ca.AgentID)
	if err != nil {
		slog.Error("dispatch re-arm: agent lookup failed",
			"chat_id", chat.ID, "agent_id", ca.AgentID, "error", err)
		return
	}
	if !agent.Active || agent.WebhookURL == "" {
		return
	}

	buffer := time.Duration(agent.BufferTimeSeconds) * time.Second
	chatID := chat.ID
	d.queue.Schedule(func() {
		d.runCheck(chatID, agent, buffer)
	}, d.now().Add(buffer))

	slog.Debug("dispatch check scheduled",
		"chat_id", chatID, "agent_id", agent.ID, "buffer", buffer)
}

// runCheck is the fire-time freshness test. A check that finds a message newer
// than its quiet-window cutoff is stale and does nothing; the newer message's
// own schedule covers that window. Two checks firing at nearly the same
// instant can both pass the test and deliver twice; that race is accepted,
// delivery is at-least-once per quiet window.
func (d *Dispatcher) runCheck(chatID uuid.UUID, agent *model.Agent, buffer time.Duration) {
	ctx := context.Background()
	now := d.now()

	chat, err := d.stores.Chats.Get(ctx, chatID)
	if err != nil {
		slog.Error("dispatch check: chat lookup failed", "chat_id", chatID, "error", err)
		return
	}

	cutoff := now.Add(-buffer)
	if chat.LastMessageTS.After(cutoff) {
		slog.Debug("dispatch check stale, newer message arrived",
			"chat_id", chatID, "agent_id", agent.ID,
			"last_message_ts", chat.LastMessageTS)
		return
	}

	since := now.Add(-time.Duration(agent.RecentMsgWindowMinutes) * time.Minute)
	messages, err := d.stores.Messages.ListRecent(ctx, chatID, agent.HistoryMsgCount, since)
	if err != nil {
		slog.Error("dispatch check: history fetch failed", "chat_id", chatID, "error", err)
		return
	}
	if len(messages) == 0 {
		slog.Debug("dispatch check: no recent messages", "chat_id", chatID, "agent_id", agent.ID)
		return
	}

	payload := buildPayload(chat, messages)
	ok := d.deliverer.Deliver(ctx, agent.WebhookURL, payload)
	slog.Info("agent dispatch finished",
		"chat_id", chatID, "agent_id", agent.ID,
		"messages", len(messages), "delivered", ok,
		"fire_and_forget", agent.FireAndForget)
}

func buildPayload(chat *model.Chat, messages []model.Message) webhookPayload {
	items := make([]historyItem, 0, len(messages))
	for _, msg := range messages {
		items = append(items, historyItem{
			ID:         msg.ID.String(),
			ExternalID: msg.ExternalID,
			ChatID:     msg.ChatID.String(),
			Content:    msg.Content,
			Timestamp:  msg.Timestamp.UTC().Format(time.RFC3339),
			Metadata:   msg.Metadata,
		})
	}
	return webhookPayload{
		Chat: chatRef{
			ID:         chat.ID.String(),
			ExternalID: chat.ExternalID,
			ChannelID:  chat.ChannelID.String(),
		},
		Messages: items,
	}
}
