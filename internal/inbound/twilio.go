package inbound

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// TwilioAdapter handles Twilio's WhatsApp webhook: form-encoded bodies with
// whatsapp:-prefixed addresses. Twilio does not timestamp inbound webhooks,
// so events are stamped at receipt.
type TwilioAdapter struct {
	now func() time.Time
}

func NewTwilioAdapter() *TwilioAdapter {
	return &TwilioAdapter{now: time.Now}
}

func (a *TwilioAdapter) Platform() model.Platform { return model.PlatformWhatsAppTwilio }

func (a *TwilioAdapter) Validate(p Payload) error {
	if p.Form == nil {
		return fmt.Errorf("%w: expected form-encoded body", ErrValidation)
	}
	if p.Form.Get("From") == "" {
		return fmt.Errorf("%w: missing From", ErrValidation)
	}
	if p.Form.Get("Body") == "" && p.Form.Get("MediaUrl0") == "" {
		return fmt.Errorf("%w: neither Body nor MediaUrl0 present", ErrValidation)
	}
	return nil
}

func (a *TwilioAdapter) Extract(p Payload) (*Event, error) {
	form := p.Form
	sender := strings.TrimPrefix(form.Get("From"), "whatsapp:")

	ev := &Event{
		Kind:              EventMessage,
		ExternalMessageID: form.Get("MessageSid"),
		SenderID:          sender,
		SenderName:        form.Get("ProfileName"),
		Timestamp:         a.now().UTC(),
		MessageKind:       model.KindText,
		Content:           form.Get("Body"),
		Metadata:          map[string]any{},
	}
	if ev.ExternalMessageID == "" {
		ev.ExternalMessageID = form.Get("SmsSid")
	}
	if to := form.Get("To"); to != "" {
		ev.Metadata["to"] = strings.TrimPrefix(to, "whatsapp:")
	}

	if mediaURL := form.Get("MediaUrl0"); mediaURL != "" {
		contentType := form.Get("MediaContentType0")
		ev.MessageKind = kindForContentType(contentType)
		ev.Metadata["media_url"] = mediaURL
		ev.Metadata["media_content_type"] = contentType
		if ev.Content == "" {
			ev.Content = fmt.Sprintf("[%s] %s", mediaLabel(ev.MessageKind), mediaURL)
		}
	}
	return ev, nil
}

func kindForContentType(contentType string) model.MessageKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.KindImage
	case strings.HasPrefix(contentType, "video/"):
		return model.KindVideo
	case contentType == "audio/ogg":
		// WhatsApp voice notes arrive as ogg/opus.
		return model.KindVoice
	case strings.HasPrefix(contentType, "audio/"):
		return model.KindAudio
	case contentType == "":
		return model.KindUnsupported
	default:
		return model.KindDocument
	}
}

func mediaLabel(kind model.MessageKind) string {
	switch kind {
	case model.KindImage:
		return "Image"
	case model.KindVideo:
		return "Video"
	case model.KindVoice:
		return "Voice"
	case model.KindAudio:
		return "Audio"
	case model.KindDocument:
		return "Document"
	case model.KindLocation:
		return "Location"
	default:
		return "Attachment"
	}
}
