// Package hub is the inbound pipeline core: it resolves the target channel
// and adapter, routes the normalized event to the message or status path, and
// drives the side effects (chat resolution, persistence, dispatch re-arm,
// fanout) in order.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/inbound"
	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

var (
	// ErrChannelNotFound: inbound webhook names a channel id with no row.
	ErrChannelNotFound = errors.New("hub: channel not found")
	// ErrPlatformMismatch: the URL platform tag differs from the channel's
	// configured platform.
	ErrPlatformMismatch = errors.New("hub: platform mismatch")
	// ErrUnknownPlatform: the URL platform tag is not in the vocabulary.
	ErrUnknownPlatform = errors.New("hub: unknown platform")
)

// Notifier receives fanout envelopes after a message is persisted. Failures
// inside a Notifier must stay inside it.
type Notifier interface {
	Notify(n model.Notification)
}

// Dispatcher re-arms the debounce window for one (chat, agent) pair.
type Dispatcher interface {
	ReArm(ctx context.Context, chat *model.Chat, ca *model.ChatAgent)
}

// Result reports what one inbound payload produced. Warning carries soft
// failures on the status path; the HTTP layer still answers 200 for those.
type Result struct {
	Chat    *model.Chat
	Message *model.Message
	Skipped bool
	Warning string
}

// Processor wires the inbound pipeline together.
type Processor struct {
	stores     *store.Stores
	adapters   *inbound.Registry
	dispatcher Dispatcher
	notifier   Notifier
}

func NewProcessor(stores *store.Stores, adapters *inbound.Registry, dispatcher Dispatcher, notifier Notifier) *Processor {
	return &Processor{
		stores:     stores,
		adapters:   adapters,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

// ProcessInbound handles one webhook call end to end. Validation and routing
// failures come back as typed errors for the HTTP layer to map; pipeline
// failures past the point of persistence are absorbed and logged.
func (p *Processor) ProcessInbound(ctx context.Context, platformTag string, channelID uuid.UUID, payload inbound.Payload) (*Result, error) {
	channel, err := p.stores.Channels.Get(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}

	platform, err := model.ParsePlatform(platformTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platformTag)
	}
	if platform != channel.Platform {
		return nil, fmt.Errorf("%w: channel %s is %s, got %s",
			ErrPlatformMismatch, channel.ID, channel.Platform, platform)
	}

	adapter, err := p.adapters.Get(platform)
	if err != nil {
		return nil, err
	}
	if err := adapter.Validate(payload); err != nil {
		return nil, err
	}
	event, err := adapter.Extract(payload)
	if err != nil {
		return nil, err
	}

	if event.Skip {
		slog.Debug("inbound payload skipped", "channel_id", channel.ID, "platform", platform)
		return &Result{Skipped: true}, nil
	}

	switch event.Kind {
	case inbound.EventStatus:
		return p.applyStatus(ctx, channel, event), nil
	default:
		return p.applyMessage(ctx, channel, event)
	}
}

// applyStatus handles a delivery-status callback. Unknown external ids and
// unknown status words are soft failures: logged, reported as a warning,
// nothing mutated.
func (p *Processor) applyStatus(ctx context.Context, channel *model.Channel, event *inbound.Event) *Result {
	if event.DeliveryStatus == nil {
		slog.Warn("status callback with unknown status word",
			"channel_id", channel.ID, "external_id", event.ExternalMessageID,
			"status", event.RawStatus)
		return &Result{Warning: fmt.Sprintf("unknown status %q", event.RawStatus)}
	}

	msg, err := p.stores.Messages.GetByExternalID(ctx, event.ExternalMessageID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("status callback for unknown message",
			"channel_id", channel.ID, "external_id", event.ExternalMessageID,
			"status", event.RawStatus)
		return &Result{Warning: fmt.Sprintf("unknown message %q", event.ExternalMessageID)}
	}
	if err != nil {
		slog.Error("status callback lookup failed",
			"external_id", event.ExternalMessageID, "error", err)
		return &Result{Warning: "status lookup failed"}
	}

	status := *event.DeliveryStatus
	msg.DeliveryStatus = &status
	appendStatusHistory(msg, event)
	if err := p.stores.Messages.Update(ctx, msg); err != nil {
		slog.Error("status update persist failed", "message_id", msg.ID, "error", err)
		return &Result{Warning: "status persist failed"}
	}

	slog.Info("delivery status updated",
		"message_id", msg.ID, "external_id", event.ExternalMessageID, "status", status)
	return &Result{Message: msg}
}

func appendStatusHistory(msg *model.Message, event *inbound.Event) {
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	entry := map[string]any{
		"status":    string(*event.DeliveryStatus),
		"raw":       event.RawStatus,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
	}
	history, _ := msg.Metadata["status_history"].([]any)
	msg.Metadata["status_history"] = append(history, entry)
}

// applyMessage persists a new contact message and runs the downstream side
// effects. Once the message row exists the call cannot fail anymore: re-arm
// and fanout errors are logged and absorbed.
func (p *Processor) applyMessage(ctx context.Context, channel *model.Channel, event *inbound.Event) (*Result, error) {
	chat, err := p.resolveChat(ctx, channel, event.SenderID, event.SenderName)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}

	msg := &model.Message{
		ExternalID: event.ExternalMessageID,
		ChatID:     chat.ID,
		Content:    event.Content,
		SenderType: model.SenderContact,
		Timestamp:  event.Timestamp,
		Metadata:   event.Metadata,
	}
	if channel.Platform == model.PlatformTelegram || channel.Platform == model.PlatformWhatsAppMeta {
		status := model.DeliverySent
		msg.DeliveryStatus = &status
	}
	if err := p.stores.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	if err := p.stores.Chats.UpdateLastMessage(ctx, chat.ID, msg.Timestamp, msg.SenderType, model.Preview(msg.Content)); err != nil {
		slog.Error("chat denormalization failed", "chat_id", chat.ID, "error", err)
	}

	assignments, err := p.stores.ChatAgents.ListActiveByChat(ctx, chat.ID)
	if err != nil {
		slog.Error("active assignment lookup failed", "chat_id", chat.ID, "error", err)
	}
	for i := range assignments {
		p.dispatcher.ReArm(ctx, chat, &assignments[i])
	}

	p.notify(model.NewMessageNotification(chat, msg, event.MessageKind))

	slog.Info("inbound message processed",
		"chat_id", chat.ID, "message_id", msg.ID, "channel_id", channel.ID,
		"platform", channel.Platform, "kind", event.MessageKind,
		"rearmed", len(assignments))
	return &Result{Chat: chat, Message: msg}, nil
}

// resolveChat maps (channel, external id) to a Chat, creating it plus its
// agent assignments on first contact. A concurrent creator winning the unique
// constraint is not an error; their row is re-read and returned.
func (p *Processor) resolveChat(ctx context.Context, channel *model.Channel, externalID, displayName string) (*model.Chat, error) {
	chat, err := p.stores.Chats.GetByExternal(ctx, channel.ID, externalID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := displayName
	if name == "" {
		name = externalID
	}
	chat = &model.Chat{
		Name:       name,
		ExternalID: externalID,
		ChannelID:  channel.ID,
	}
	err = p.stores.Chats.Create(ctx, chat)
	if errors.Is(err, store.ErrDuplicate) {
		return p.stores.Chats.GetByExternal(ctx, channel.ID, externalID)
	}
	if err != nil {
		return nil, err
	}

	p.autoAssign(ctx, chat)
	slog.Info("chat created", "chat_id", chat.ID, "channel_id", channel.ID, "external_id", externalID)
	return chat, nil
}

// autoAssign creates one ChatAgent per eligible agent, active per the agent's
// activate-for-new-conversation flag. Losing the pair uniqueness race to a
// concurrent resolver is fine.
func (p *Processor) autoAssign(ctx context.Context, chat *model.Chat) {
	agents, err := p.stores.Agents.ListEligible(ctx)
	if err != nil {
		slog.Error("eligible agent lookup failed", "chat_id", chat.ID, "error", err)
		return
	}
	for _, agent := range agents {
		ca := &model.ChatAgent{
			ChatID:  chat.ID,
			AgentID: agent.ID,
			Active:  agent.ActivateForNewConversation,
		}
		err := p.stores.ChatAgents.Create(ctx, ca)
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			slog.Error("agent auto-assignment failed",
				"chat_id", chat.ID, "agent_id", agent.ID, "error", err)
		}
	}
}

func (p *Processor) notify(n model.Notification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification fanout panicked", "panic", r)
		}
	}()
	if p.notifier != nil {
		p.notifier.Notify(n)
	}
}
