// Package model holds the canonical Chat/Message/Channel/Agent types shared by
// every other package. Inbound adapters normalize provider payloads into these
// types; the dispatcher, sender and gateway only ever operate on them.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies which provider integration a Channel speaks.
type Platform string

const (
	PlatformWhatsAppTwilio Platform = "whatsapp_twilio"
	PlatformWhatsAppMeta   Platform = "whatsapp_meta"
	PlatformTelegram       Platform = "telegram"
	PlatformGeneric        Platform = "generic"
)

// ParsePlatform maps an inbound URL path segment onto a known Platform.
// Matching is case-insensitive; an unknown tag is a client error, not a
// missing-adapter error.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(s)) {
	case PlatformWhatsAppTwilio:
		return PlatformWhatsAppTwilio, nil
	case PlatformWhatsAppMeta:
		return PlatformWhatsAppMeta, nil
	case PlatformTelegram:
		return PlatformTelegram, nil
	case PlatformGeneric:
		return PlatformGeneric, nil
	}
	return "", fmt.Errorf("unsupported platform: %s", s)
}

// SenderType is the origin of a Message.
type SenderType string

const (
	SenderContact SenderType = "CONTACT"
	SenderUser    SenderType = "USER"
	SenderAgent   SenderType = "AGENT"
)

// DeliveryStatus is the lifecycle of an outbound message at the external
// platform. Inbound-only messages may have no delivery status at all.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryRead      DeliveryStatus = "READ"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// ParseDeliveryStatus maps a provider status word (sent/delivered/read/failed)
// onto the canonical DeliveryStatus. ok is false for unknown vocabulary.
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	switch strings.ToLower(s) {
	case "sent":
		return DeliverySent, true
	case "delivered":
		return DeliveryDelivered, true
	case "read":
		return DeliveryRead, true
	case "failed":
		return DeliveryFailed, true
	}
	return "", false
}

// MessageKind classifies inbound content.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindImage       MessageKind = "image"
	KindVideo       MessageKind = "video"
	KindAudio       MessageKind = "audio"
	KindVoice       MessageKind = "voice"
	KindDocument    MessageKind = "document"
	KindLocation    MessageKind = "location"
	KindUnsupported MessageKind = "unsupported"
)

// Channel is one connected endpoint: a WhatsApp number, a Telegram bot, or a
// generic webhook peer. Platform is immutable after creation.
type Channel struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Platform    Platform          `json:"platform"`
	Credentials map[string]string `json:"credentials,omitempty"`
	SendAPIURL  string            `json:"send_api_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Chat is one conversation thread with a single external contact on one
// Channel. The (ChannelID, ExternalID) pair is unique and is the idempotency
// key for inbound resolution. The Last* fields are denormalized from the
// newest Message and must never move backwards in time.
type Chat struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	ExternalID     string         `json:"external_id"`
	ChannelID      uuid.UUID      `json:"channel_id"`
	AssignedUserID string         `json:"assigned_user_id,omitempty"`
	LastMessageTS  time.Time      `json:"last_message_ts"`
	LastSenderType SenderType     `json:"last_sender_type,omitempty"`
	LastMessage    string         `json:"last_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExtraData      map[string]any `json:"extra_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Message is one unit of conversation content. Immutable once created except
// for DeliveryStatus and Metadata, which provider callbacks and send attempts
// update.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ExternalID     string          `json:"external_id,omitempty"`
	ChatID         uuid.UUID       `json:"chat_id"`
	Content        string          `json:"content"`
	SenderType     SenderType      `json:"sender_type"`
	Timestamp      time.Time       `json:"timestamp"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Read           bool            `json:"read"`
	DeliveryStatus *DeliveryStatus `json:"delivery_status,omitempty"`
}

// Agent is an external automated responder reachable over a webhook. The
// buffer fields drive the dispatch debounce: after BufferTimeSeconds of quiet
// the agent receives up to HistoryMsgCount messages from the last
// RecentMsgWindowMinutes.
type Agent struct {
	ID                         uuid.UUID `json:"id"`
	Name                       string    `json:"name"`
	WebhookURL                 string    `json:"webhook_url"`
	FireAndForget              bool      `json:"is_fire_and_forget"`
	BufferTimeSeconds          int       `json:"buffer_time_seconds"`
	HistoryMsgCount            int       `json:"history_msg_count"`
	RecentMsgWindowMinutes     int       `json:"recent_msg_window_minutes"`
	ActivateForNewConversation bool      `json:"activate_for_new_conversation"`
	Active                     bool      `json:"is_active"`
}

// ChatAgent assigns one Agent to one Chat. (ChatID, AgentID) is unique.
// The Active flag, not row existence, gates dispatch.
type ChatAgent struct {
	ID      uuid.UUID `json:"id"`
	ChatID  uuid.UUID `json:"chat_id"`
	AgentID uuid.UUID `json:"agent_id"`
	Active  bool      `json:"active"`
}

// Notification is the envelope broadcast to live websocket clients whenever a
// message is created, inbound or outbound.
type Notification struct {
	Type           string `json:"type"`
	ChatID         string `json:"chat_id"`
	ChannelID      string `json:"channel_id"`
	MessageID      string `json:"message_id"`
	SenderType     string `json:"sender_type"`
	Timestamp      string `json:"timestamp"`
	MessageType    string `json:"message_type"`
	Preview        string `json:"preview"`
	ExternalID     string `json:"external_id"`
	ChatName       string `json:"chat_name"`
	ChatExternalID string `json:"chat_external_id"`
}

// NewMessageNotification builds the fanout envelope for a freshly persisted
// message.
func NewMessageNotification(chat *Chat, msg *Message, kind MessageKind) Notification {
	return Notification{
		Type:           "new_message",
		ChatID:         chat.ID.String(),
		ChannelID:      chat.ChannelID.String(),
		MessageID:      msg.ID.String(),
		SenderType:     string(msg.SenderType),
		Timestamp:      msg.Timestamp.UTC().Format(time.RFC3339),
		MessageType:    string(kind),
		Preview:        Preview(msg.Content),
		ExternalID:     msg.ExternalID,
		ChatName:       chat.Name,
		ChatExternalID: chat.ExternalID,
	}
}

const previewLen = 100

// Preview truncates message content for denormalized chat fields and fanout
// payloads: 100 characters plus an ellipsis marker when cut. Truncation counts
// runes, not bytes, so a multi-byte character is never split.
func Preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return string(runes[:previewLen]) + "..."
}

// NormalizePhone strips everything but digits from an external id so it can be
// used as a destination address. Provider-specific "from" formatting stays in
// the outbound adapters.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
