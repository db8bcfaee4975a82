package inbound

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// metaPayload is the flattened WhatsApp Cloud API webhook shape: one message
// or one status callback per request, already unwrapped from Meta's
// entry/changes envelope by the upstream relay.
type metaPayload struct {
	MessageID   string          `json:"message_id"`
	FromNumber  string          `json:"from_number"`
	FromName    string          `json:"from_name"`
	Timestamp   json.RawMessage `json:"timestamp"`
	MessageType string          `json:"message_type"`
	Text        string          `json:"text"`
	MediaURL    string          `json:"media_url"`
	Caption     string          `json:"caption"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Status      string          `json:"status"`
	FromMe      bool            `json:"from_me"`
}

// hasContent reports whether the payload carries message content, as opposed
// to being a pure status callback.
func (m *metaPayload) hasContent() bool {
	return m.Text != "" || m.MediaURL != "" || m.Latitude != nil
}

// MetaAdapter handles WhatsApp Cloud API webhooks. The same endpoint receives
// new messages and delivery-status callbacks; a payload with a status word and
// no content is a status event.
type MetaAdapter struct {
	now func() time.Time
}

func NewMetaAdapter() *MetaAdapter {
	return &MetaAdapter{now: time.Now}
}

func (a *MetaAdapter) Platform() model.Platform { return model.PlatformWhatsAppMeta }

func (a *MetaAdapter) Validate(p Payload) error {
	if len(p.JSON) == 0 {
		return fmt.Errorf("%w: expected JSON body", ErrValidation)
	}
	var m metaPayload
	if err := json.Unmarshal(p.JSON, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if m.Status != "" && m.MessageID != "" && !m.hasContent() {
		return nil
	}
	if m.FromNumber == "" {
		return fmt.Errorf("%w: missing from_number", ErrValidation)
	}
	if !m.hasContent() {
		return fmt.Errorf("%w: payload has neither content nor status", ErrValidation)
	}
	if m.MessageType == string(model.KindLocation) && (m.Latitude == nil || m.Longitude == nil) {
		return fmt.Errorf("%w: location payload requires both latitude and longitude", ErrValidation)
	}
	return nil
}

func (a *MetaAdapter) Extract(p Payload) (*Event, error) {
	var m metaPayload
	if err := json.Unmarshal(p.JSON, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if m.Status != "" && m.MessageID != "" && !m.hasContent() {
		ev := &Event{
			Kind:              EventStatus,
			ExternalMessageID: m.MessageID,
			RawStatus:         m.Status,
			Timestamp:         a.parseTimestamp(m.Timestamp),
		}
		if status, ok := model.ParseDeliveryStatus(m.Status); ok {
			ev.DeliveryStatus = &status
		}
		return ev, nil
	}

	if m.FromMe {
		// Echo of our own outbound send; nothing to persist.
		return &Event{Kind: EventMessage, Skip: true}, nil
	}

	ev := &Event{
		Kind:              EventMessage,
		ExternalMessageID: m.MessageID,
		SenderID:          m.FromNumber,
		SenderName:        m.FromName,
		Timestamp:         a.parseTimestamp(m.Timestamp),
		Metadata:          map[string]any{},
	}
	a.fillContent(ev, &m)
	return ev, nil
}

func (a *MetaAdapter) fillContent(ev *Event, m *metaPayload) {
	kind := model.MessageKind(m.MessageType)
	switch kind {
	case model.KindImage, model.KindVideo, model.KindAudio, model.KindVoice, model.KindDocument:
		ev.MessageKind = kind
		ev.Metadata["media_url"] = m.MediaURL
		if m.Caption != "" {
			ev.Content = m.Caption
			ev.Metadata["caption"] = m.Caption
		} else {
			ev.Content = fmt.Sprintf("[%s] %s", mediaLabel(kind), m.MediaURL)
		}
	case model.KindLocation:
		if m.Latitude == nil || m.Longitude == nil {
			ev.MessageKind = model.KindUnsupported
			ev.Content = fmt.Sprintf("[Unsupported: %s]", m.MessageType)
			return
		}
		ev.MessageKind = model.KindLocation
		ev.Metadata["latitude"] = *m.Latitude
		ev.Metadata["longitude"] = *m.Longitude
		ev.Content = fmt.Sprintf("[Location] %f,%f", *m.Latitude, *m.Longitude)
	case model.KindText, "":
		ev.MessageKind = model.KindText
		ev.Content = m.Text
	default:
		ev.MessageKind = model.KindUnsupported
		ev.Content = fmt.Sprintf("[Unsupported: %s]", m.MessageType)
	}
}

// parseTimestamp accepts unix seconds (number or string) or RFC 3339; anything
// else falls back to receipt time.
func (a *MetaAdapter) parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return a.now().UTC()
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return time.Unix(int64(asNumber), 0).UTC()
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if secs, err := strconv.ParseInt(asString, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
		if ts, err := time.Parse(time.RFC3339, asString); err == nil {
			return ts.UTC()
		}
	}
	return a.now().UTC()
}
