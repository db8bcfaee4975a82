package inbound

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// TelegramAdapter handles Telegram bot webhooks: a JSON telego.Update with a
// message object. Updates without a message (edits, callbacks, member joins)
// validate but are skipped.
type TelegramAdapter struct {
	now func() time.Time
}

func NewTelegramAdapter() *TelegramAdapter {
	return &TelegramAdapter{now: time.Now}
}

func (a *TelegramAdapter) Platform() model.Platform { return model.PlatformTelegram }

func (a *TelegramAdapter) Validate(p Payload) error {
	if len(p.JSON) == 0 {
		return fmt.Errorf("%w: expected JSON body", ErrValidation)
	}
	var update telego.Update
	if err := json.Unmarshal(p.JSON, &update); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if update.UpdateID == 0 && update.Message == nil {
		return fmt.Errorf("%w: not a telegram update", ErrValidation)
	}
	return nil
}

func (a *TelegramAdapter) Extract(p Payload) (*Event, error) {
	var update telego.Update
	if err := json.Unmarshal(p.JSON, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	message := update.Message
	if message == nil {
		return &Event{Kind: EventMessage, Skip: true}, nil
	}

	ev := &Event{
		Kind:              EventMessage,
		ExternalMessageID: strconv.Itoa(message.MessageID),
		SenderID:          strconv.FormatInt(message.Chat.ID, 10),
		Timestamp:         time.Unix(int64(message.Date), 0).UTC(),
		Metadata:          map[string]any{},
	}
	if message.Date == 0 {
		ev.Timestamp = a.now().UTC()
	}
	if user := message.From; user != nil {
		ev.SenderName = telegramDisplayName(user)
		if user.Username != "" {
			ev.Metadata["username"] = user.Username
		}
	}
	a.fillContent(ev, message)
	return ev, nil
}

func (a *TelegramAdapter) fillContent(ev *Event, message *telego.Message) {
	switch {
	case message.Text != "":
		ev.MessageKind = model.KindText
		ev.Content = message.Text
	case len(message.Photo) > 0:
		ev.MessageKind = model.KindImage
		// Telegram sends multiple resolutions; the last is the largest.
		largest := message.Photo[len(message.Photo)-1]
		ev.Metadata["file_id"] = largest.FileID
		ev.Content = captionOr(message.Caption, "[Image]")
	case message.Video != nil:
		ev.MessageKind = model.KindVideo
		ev.Metadata["file_id"] = message.Video.FileID
		ev.Content = captionOr(message.Caption, "[Video]")
	case message.Voice != nil:
		ev.MessageKind = model.KindVoice
		ev.Metadata["file_id"] = message.Voice.FileID
		ev.Content = "[Voice]"
	case message.Audio != nil:
		ev.MessageKind = model.KindAudio
		ev.Metadata["file_id"] = message.Audio.FileID
		ev.Content = captionOr(message.Caption, "[Audio]")
	case message.Document != nil:
		ev.MessageKind = model.KindDocument
		ev.Metadata["file_id"] = message.Document.FileID
		ev.Metadata["file_name"] = message.Document.FileName
		ev.Content = captionOr(message.Caption, fmt.Sprintf("[Document] %s", message.Document.FileName))
	case message.Location != nil:
		ev.MessageKind = model.KindLocation
		ev.Metadata["latitude"] = message.Location.Latitude
		ev.Metadata["longitude"] = message.Location.Longitude
		ev.Content = fmt.Sprintf("[Location] %f,%f", message.Location.Latitude, message.Location.Longitude)
	default:
		ev.MessageKind = model.KindUnsupported
		ev.Content = "[Unsupported message]"
	}
}

func captionOr(caption, fallback string) string {
	if caption != "" {
		return caption
	}
	return fallback
}

func telegramDisplayName(user *telego.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.Username
	}
	return name
}
