package outbound

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthub/internal/model"
	"github.com/nextlevelbuilder/agenthub/internal/store"
)

type stubAdapter struct {
	platform model.Platform
	result   SendResult
	panics   bool
}

func (a *stubAdapter) Platform() model.Platform                    { return a.platform }
func (a *stubAdapter) ValidateChannelConfig(*model.Channel) bool   { return true }
func (a *stubAdapter) Send(context.Context, *model.Channel, *model.Chat, *model.Message) SendResult {
	if a.panics {
		panic("adapter exploded")
	}
	return a.result
}

type stubNotifier struct {
	notifications []model.Notification
}

func (n *stubNotifier) Notify(notification model.Notification) {
	n.notifications = append(n.notifications, notification)
}

type senderEnv struct {
	stores   *store.Stores
	notifier *stubNotifier
	registry *Registry
	sender   *MessageSender
	channel  *model.Channel
	chat     *model.Chat
}

func newSenderEnv(t *testing.T, adapters ...Adapter) *senderEnv {
	t.Helper()
	ctx := context.Background()
	stores := store.NewMemoryStores()
	channel := &model.Channel{Name: "gen", Platform: model.PlatformGeneric}
	if err := stores.Channels.Create(ctx, channel); err != nil {
		t.Fatal(err)
	}
	chat := &model.Chat{ExternalID: "peer-1", ChannelID: channel.ID}
	if err := stores.Chats.Create(ctx, chat); err != nil {
		t.Fatal(err)
	}
	registry := NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	notifier := &stubNotifier{}
	return &senderEnv{
		stores:   stores,
		notifier: notifier,
		registry: registry,
		sender:   NewMessageSender(stores, registry, notifier),
		channel:  channel,
		chat:     chat,
	}
}

func TestSendSuccessAnnotatesMetadata(t *testing.T) {
	e := newSenderEnv(t, &stubAdapter{
		platform: model.PlatformGeneric,
		result: SendResult{
			Status: SendSuccess, ExternalID: "ext-7",
			PlatformStatus: "accepted", To: "peer-1", From: "hub",
		},
	})

	msg, err := e.sender.Send(context.Background(), e.channel.ID, e.chat.ID, "hello out there", model.SenderUser)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ExternalID != "ext-7" {
		t.Errorf("ExternalID = %q", msg.ExternalID)
	}
	if msg.DeliveryStatus == nil || *msg.DeliveryStatus != model.DeliverySent {
		t.Errorf("DeliveryStatus = %v, want SENT", msg.DeliveryStatus)
	}
	if msg.Metadata["platform_sent"] != true || msg.Metadata["sent_to"] != "peer-1" || msg.Metadata["sent_from"] != "hub" {
		t.Errorf("metadata = %v", msg.Metadata)
	}

	stored, err := e.stores.Messages.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ExternalID != "ext-7" {
		t.Error("success annotations not persisted")
	}

	chat, _ := e.stores.Chats.Get(context.Background(), e.chat.ID)
	if chat.LastMessage != "hello out there" || chat.LastSenderType != model.SenderUser {
		t.Errorf("chat denormalization = %q/%q", chat.LastMessage, chat.LastSenderType)
	}
	if len(e.notifier.notifications) != 1 {
		t.Errorf("notifications = %d, want 1", len(e.notifier.notifications))
	}
}

func TestSendFailureIsContained(t *testing.T) {
	tests := []struct {
		name        string
		adapter     Adapter
		wantErrType string
	}{
		{
			"api error",
			&stubAdapter{platform: model.PlatformGeneric, result: SendResult{
				Status: SendError, Err: "rate limited", ErrType: "api_error", ErrCode: "429",
			}},
			"api_error",
		},
		{
			"adapter panic",
			&stubAdapter{platform: model.PlatformGeneric, panics: true},
			"request_failed",
		},
		{
			"no adapter registered",
			nil,
			"not_implemented",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var e *senderEnv
			if tc.adapter != nil {
				e = newSenderEnv(t, tc.adapter)
			} else {
				e = newSenderEnv(t)
			}

			msg, err := e.sender.Send(context.Background(), e.channel.ID, e.chat.ID, "doomed", model.SenderUser)
			if err != nil {
				t.Fatalf("platform failure escaped to caller: %v", err)
			}
			if msg.Metadata["platform_sent"] != false {
				t.Errorf("platform_sent = %v, want false", msg.Metadata["platform_sent"])
			}
			if msg.Metadata["platform_error_type"] != tc.wantErrType {
				t.Errorf("platform_error_type = %v, want %q", msg.Metadata["platform_error_type"], tc.wantErrType)
			}
			if msg.Metadata["platform_error"] == "" {
				t.Error("platform_error missing")
			}
			if msg.DeliveryStatus == nil || *msg.DeliveryStatus != model.DeliveryFailed {
				t.Errorf("DeliveryStatus = %v, want FAILED", msg.DeliveryStatus)
			}

			// The message still persisted and still fanned out.
			if _, err := e.stores.Messages.Get(context.Background(), msg.ID); err != nil {
				t.Errorf("failed send not persisted: %v", err)
			}
			if len(e.notifier.notifications) != 1 {
				t.Errorf("notifications = %d, want 1", len(e.notifier.notifications))
			}
		})
	}
}

func TestSendCallerErrors(t *testing.T) {
	e := newSenderEnv(t)

	t.Run("unknown channel", func(t *testing.T) {
		_, err := e.sender.Send(context.Background(), uuid.New(), e.chat.ID, "x", model.SenderUser)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("unknown chat", func(t *testing.T) {
		_, err := e.sender.Send(context.Background(), e.channel.ID, uuid.New(), "x", model.SenderUser)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("chat on another channel", func(t *testing.T) {
		ctx := context.Background()
		other := &model.Channel{Name: "other", Platform: model.PlatformGeneric}
		if err := e.stores.Channels.Create(ctx, other); err != nil {
			t.Fatal(err)
		}
		_, err := e.sender.Send(ctx, other.ID, e.chat.ID, "x", model.SenderUser)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
