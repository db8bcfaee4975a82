package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// Notifier receives the fanout envelope after an outbound message persists.
type Notifier interface {
	Notify(n model.Notification)
}

// MessageSender persists a locally authored message, attempts the platform
// send, and records the outcome as message metadata. A platform failure never
// fails the caller: the message still exists, annotated with platform_sent=false.
type MessageSender struct {
	stores   *store.Stores
	adapters *Registry
	notifier Notifier
	now      func() time.Time
}

func NewMessageSender(stores *store.Stores, adapters *Registry, notifier Notifier) *MessageSender {
	return &MessageSender{
		stores:   stores,
		adapters: adapters,
		notifier: notifier,
		now:      time.Now,
	}
}

// Send creates and dispatches one outbound message. Returned errors cover
// only the caller's own mistakes (unknown chat or channel, mismatched pair)
// and local persistence failures; platform outcomes live in the metadata.
func (s *MessageSender) Send(ctx context.Context, channelID, chatID uuid.UUID, content string, senderType model.SenderType) (*model.Message, error) {
	channel, err := s.stores.Channels.Get(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}
	chat, err := s.stores.Chats.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	if chat.ChannelID != channel.ID {
		return nil, fmt.Errorf("chat %s does not belong to channel %s: %w",
			chatID, channelID, store.ErrNotFound)
	}

	pending := model.DeliveryPending
	msg := &model.Message{
		ChatID:         chat.ID,
		Content:        content,
		SenderType:     senderType,
		Timestamp:      s.now().UTC(),
		Metadata:       map[string]any{},
		DeliveryStatus: &pending,
	}
	if err := s.stores.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	result := s.attemptSend(ctx, channel, chat, msg)
	s.applyResult(msg, result)

	if err := s.stores.Messages.Update(ctx, msg); err != nil {
		slog.Error("outbound metadata persist failed", "message_id", msg.ID, "error", err)
	}
	if err := s.stores.Chats.UpdateLastMessage(ctx, chat.ID, msg.Timestamp, msg.SenderType, model.Preview(msg.Content)); err != nil {
		slog.Error("chat denormalization failed", "chat_id", chat.ID, "error", err)
	}
	s.notify(model.NewMessageNotification(chat, msg, model.KindText))

	slog.Info("outbound message sent",
		"chat_id", chat.ID, "message_id", msg.ID, "platform", channel.Platform,
		"platform_sent", result.Status == SendSuccess)
	return msg, nil
}

// attemptSend never lets the adapter take the pipeline down: a missing
// adapter or a panic comes back as an error result like any other failure.
func (s *MessageSender) attemptSend(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) (result SendResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("outbound adapter panicked",
				"platform", channel.Platform, "chat_id", chat.ID, "panic", r)
			result = errorResult(errTypeRequestFailed, fmt.Sprintf("adapter panic: %v", r))
		}
	}()

	adapter, ok := s.adapters.Get(channel.Platform)
	if !ok {
		return errorResult(errTypeNotImplemented,
			fmt.Sprintf("no outbound adapter for platform %s", channel.Platform))
	}
	return adapter.Send(ctx, channel, chat, msg)
}

func (s *MessageSender) applyResult(msg *model.Message, result SendResult) {
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	if result.Status == SendSuccess {
		status := model.DeliverySent
		msg.DeliveryStatus = &status
		msg.ExternalID = result.ExternalID
		msg.Metadata["platform_sent"] = true
		if result.PlatformStatus != "" {
			msg.Metadata["platform_status"] = result.PlatformStatus
		}
		if result.To != "" {
			msg.Metadata["sent_to"] = result.To
		}
		if result.From != "" {
			msg.Metadata["sent_from"] = result.From
		}
		return
	}

	status := model.DeliveryFailed
	msg.DeliveryStatus = &status
	msg.Metadata["platform_sent"] = false
	msg.Metadata["platform_error"] = result.Err
	msg.Metadata["platform_error_type"] = result.ErrType
	if result.ErrCode != "" {
		msg.Metadata["platform_error_code"] = result.ErrCode
	}
}

func (s *MessageSender) notify(n model.Notification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification fanout panicked", "panic", r)
		}
	}()
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}
