package inbound

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// genericPayload is the neutral JSON contract for channels without a
// platform-specific integration.
type genericPayload struct {
	MessageID   string         `json:"message_id"`
	SenderID    string         `json:"sender_id"`
	SenderName  string         `json:"sender_name"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata"`
	Status      string         `json:"status"`
}

// GenericAdapter handles the hub's own neutral webhook format. Like the
// WhatsApp Cloud adapter it multiplexes status callbacks on the same endpoint.
type GenericAdapter struct {
	now func() time.Time
}

func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{now: time.Now}
}

func (a *GenericAdapter) Platform() model.Platform { return model.PlatformGeneric }

func (a *GenericAdapter) Validate(p Payload) error {
	if len(p.JSON) == 0 {
		return fmt.Errorf("%w: expected JSON body", ErrValidation)
	}
	var g genericPayload
	if err := json.Unmarshal(p.JSON, &g); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if g.Status != "" && g.MessageID != "" && g.Content == "" {
		return nil
	}
	if g.SenderID == "" {
		return fmt.Errorf("%w: missing sender_id", ErrValidation)
	}
	if g.Content == "" {
		return fmt.Errorf("%w: missing content", ErrValidation)
	}
	return nil
}

func (a *GenericAdapter) Extract(p Payload) (*Event, error) {
	var g genericPayload
	if err := json.Unmarshal(p.JSON, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if g.Status != "" && g.MessageID != "" && g.Content == "" {
		ev := &Event{
			Kind:              EventStatus,
			ExternalMessageID: g.MessageID,
			RawStatus:         g.Status,
			Timestamp:         a.parseTimestamp(g.Timestamp),
		}
		if status, ok := model.ParseDeliveryStatus(g.Status); ok {
			ev.DeliveryStatus = &status
		}
		return ev, nil
	}

	kind := model.MessageKind(g.MessageType)
	switch kind {
	case model.KindText, model.KindImage, model.KindVideo, model.KindAudio,
		model.KindVoice, model.KindDocument, model.KindLocation:
	case "":
		kind = model.KindText
	default:
		kind = model.KindUnsupported
	}

	metadata := g.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Event{
		Kind:              EventMessage,
		ExternalMessageID: g.MessageID,
		SenderID:          g.SenderID,
		SenderName:        g.SenderName,
		Timestamp:         a.parseTimestamp(g.Timestamp),
		MessageKind:       kind,
		Content:           g.Content,
		Metadata:          metadata,
	}, nil
}

func (a *GenericAdapter) parseTimestamp(s string) time.Time {
	if s == "" {
		return a.now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return a.now().UTC()
}
