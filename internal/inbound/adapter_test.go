package inbound

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewTwilioAdapter())

	if _, err := r.Get(model.PlatformWhatsAppTwilio); err != nil {
		t.Fatalf("Get(twilio) = %v, want nil", err)
	}
	if _, err := r.Get(model.PlatformTelegram); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Get(telegram) = %v, want ErrNotImplemented", err)
	}
}

func TestTwilioExtractText(t *testing.T) {
	a := NewTwilioAdapter()
	a.now = fixedNow

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("To", "whatsapp:+14155238886")
	form.Set("ProfileName", "Ada")
	form.Set("Body", "hello there")
	p := Payload{Form: form}

	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.Kind != EventMessage {
		t.Errorf("Kind = %v, want message", ev.Kind)
	}
	if ev.SenderID != "+15551234567" {
		t.Errorf("SenderID = %q, want whatsapp prefix stripped", ev.SenderID)
	}
	if ev.SenderName != "Ada" || ev.Content != "hello there" {
		t.Errorf("sender/content = %q/%q", ev.SenderName, ev.Content)
	}
	if ev.MessageKind != model.KindText {
		t.Errorf("MessageKind = %v, want text", ev.MessageKind)
	}
	if ev.ExternalMessageID != "SM123" {
		t.Errorf("ExternalMessageID = %q, want SM123", ev.ExternalMessageID)
	}
	if !ev.Timestamp.Equal(fixedNow()) {
		t.Errorf("Timestamp = %v, want receipt time", ev.Timestamp)
	}
}

func TestTwilioExtractMedia(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        model.MessageKind
	}{
		{"image", "image/jpeg", model.KindImage},
		{"video", "video/mp4", model.KindVideo},
		{"voice note", "audio/ogg", model.KindVoice},
		{"audio file", "audio/mpeg", model.KindAudio},
		{"pdf", "application/pdf", model.KindDocument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			form := url.Values{}
			form.Set("From", "whatsapp:+15551234567")
			form.Set("MediaUrl0", "https://api.twilio.com/media/1")
			form.Set("MediaContentType0", tc.contentType)
			p := Payload{Form: form}

			a := NewTwilioAdapter()
			if err := a.Validate(p); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			ev, err := a.Extract(p)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if ev.MessageKind != tc.want {
				t.Errorf("MessageKind = %v, want %v", ev.MessageKind, tc.want)
			}
			if ev.Content == "" {
				t.Error("Content empty, want media placeholder")
			}
			if ev.Metadata["media_url"] != "https://api.twilio.com/media/1" {
				t.Errorf("media_url metadata = %v", ev.Metadata["media_url"])
			}
		})
	}
}

func TestTwilioValidateRejects(t *testing.T) {
	a := NewTwilioAdapter()
	tests := []struct {
		name string
		p    Payload
	}{
		{"json body", Payload{JSON: []byte(`{}`)}},
		{"missing From", Payload{Form: url.Values{"Body": {"hi"}}}},
		{"no content", Payload{Form: url.Values{"From": {"whatsapp:+1555"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Validate(tc.p); !errors.Is(err, ErrValidation) {
				t.Errorf("Validate = %v, want ErrValidation", err)
			}
		})
	}
}

func TestMetaExtractMessage(t *testing.T) {
	a := NewMetaAdapter()
	a.now = fixedNow

	p := Payload{JSON: []byte(`{
		"message_id": "wamid.abc",
		"from_number": "15551234567",
		"from_name": "Grace",
		"timestamp": "1717243200",
		"message_type": "text",
		"text": "hi from meta"
	}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.Kind != EventMessage || ev.SenderID != "15551234567" || ev.Content != "hi from meta" {
		t.Errorf("unexpected event %+v", ev)
	}
	if want := time.Unix(1717243200, 0).UTC(); !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestMetaTimestampFormats(t *testing.T) {
	a := NewMetaAdapter()
	a.now = fixedNow

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"unix number", `1717243200`, time.Unix(1717243200, 0).UTC()},
		{"unix string", `"1717243200"`, time.Unix(1717243200, 0).UTC()},
		{"rfc3339", `"2024-06-01T12:00:00Z"`, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"garbage", `"not a time"`, fixedNow()},
		{"absent", ``, fixedNow()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := a.parseTimestamp([]byte(tc.raw))
			if !got.Equal(tc.want) {
				t.Errorf("parseTimestamp(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestMetaExtractStatus(t *testing.T) {
	a := NewMetaAdapter()
	p := Payload{JSON: []byte(`{"message_id": "wamid.abc", "status": "delivered"}`)}

	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.Kind != EventStatus {
		t.Fatalf("Kind = %v, want status", ev.Kind)
	}
	if ev.ExternalMessageID != "wamid.abc" || ev.RawStatus != "delivered" {
		t.Errorf("status event = %+v", ev)
	}
	if ev.DeliveryStatus == nil || *ev.DeliveryStatus != model.DeliveryDelivered {
		t.Errorf("DeliveryStatus = %v, want DELIVERED", ev.DeliveryStatus)
	}
}

func TestMetaUnknownStatusWord(t *testing.T) {
	a := NewMetaAdapter()
	ev, err := a.Extract(Payload{JSON: []byte(`{"message_id": "wamid.x", "status": "teleported"}`)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.Kind != EventStatus || ev.DeliveryStatus != nil {
		t.Errorf("unknown status should map to nil DeliveryStatus, got %+v", ev)
	}
	if ev.RawStatus != "teleported" {
		t.Errorf("RawStatus = %q", ev.RawStatus)
	}
}

func TestMetaFromMeSkipped(t *testing.T) {
	a := NewMetaAdapter()
	p := Payload{JSON: []byte(`{
		"message_id": "wamid.me",
		"from_number": "15550000000",
		"text": "our own echo",
		"from_me": true
	}`)}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ev.Skip {
		t.Error("from_me echo should be skipped")
	}
}

func TestMetaExtractLocation(t *testing.T) {
	a := NewMetaAdapter()
	p := Payload{JSON: []byte(`{
		"message_id": "wamid.loc",
		"from_number": "15551234567",
		"message_type": "location",
		"latitude": 10.5,
		"longitude": -20.25
	}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.MessageKind != model.KindLocation {
		t.Errorf("MessageKind = %v, want location", ev.MessageKind)
	}
	if ev.Metadata["latitude"] != 10.5 || ev.Metadata["longitude"] != -20.25 {
		t.Errorf("location metadata = %v", ev.Metadata)
	}
}

func TestMetaValidateLocationRequiresCoordinates(t *testing.T) {
	a := NewMetaAdapter()
	tests := []struct {
		name string
		body string
	}{
		{"missing longitude", `{"from_number": "15551234567", "message_type": "location", "latitude": 1.5}`},
		{"missing latitude", `{"from_number": "15551234567", "message_type": "location", "longitude": -20.25}`},
		{"text but no coordinates", `{"from_number": "15551234567", "message_type": "location", "text": "here"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Validate(Payload{JSON: []byte(tc.body)}); !errors.Is(err, ErrValidation) {
				t.Errorf("Validate = %v, want ErrValidation", err)
			}
		})
	}
}

func TestMetaLocationWithoutCoordinatesDoesNotPanic(t *testing.T) {
	a := NewMetaAdapter()
	// Extract must stay total even on a payload Validate would reject.
	ev, err := a.Extract(Payload{JSON: []byte(`{
		"message_id": "wamid.half",
		"from_number": "15551234567",
		"message_type": "location",
		"latitude": 1.5
	}`)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.MessageKind != model.KindUnsupported {
		t.Errorf("MessageKind = %v, want unsupported", ev.MessageKind)
	}
}

func TestTelegramExtractText(t *testing.T) {
	a := NewTelegramAdapter()
	p := Payload{JSON: []byte(`{
		"update_id": 100,
		"message": {
			"message_id": 42,
			"from": {"id": 777, "first_name": "Linus", "username": "linus"},
			"chat": {"id": 777, "type": "private"},
			"date": 1717243200,
			"text": "hello bot"
		}
	}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.SenderID != "777" || ev.ExternalMessageID != "42" {
		t.Errorf("ids = %q/%q", ev.SenderID, ev.ExternalMessageID)
	}
	if ev.SenderName != "Linus" {
		t.Errorf("SenderName = %q", ev.SenderName)
	}
	if ev.Content != "hello bot" || ev.MessageKind != model.KindText {
		t.Errorf("content = %q kind = %v", ev.Content, ev.MessageKind)
	}
	if want := time.Unix(1717243200, 0).UTC(); !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestTelegramUpdateWithoutMessageSkipped(t *testing.T) {
	a := NewTelegramAdapter()
	p := Payload{JSON: []byte(`{"update_id": 101}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ev.Skip {
		t.Error("update without message should be skipped")
	}
}

func TestGenericExtractMessage(t *testing.T) {
	a := NewGenericAdapter()
	p := Payload{JSON: []byte(`{
		"message_id": "ext-1",
		"sender_id": "contact-9",
		"sender_name": "Pat",
		"content": "ping",
		"timestamp": "2024-06-01T12:00:00Z",
		"metadata": {"source": "crm"}
	}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.SenderID != "contact-9" || ev.Content != "ping" || ev.MessageKind != model.KindText {
		t.Errorf("event = %+v", ev)
	}
	if ev.Metadata["source"] != "crm" {
		t.Errorf("metadata passthrough lost: %v", ev.Metadata)
	}
}

func TestGenericStatusCallback(t *testing.T) {
	a := NewGenericAdapter()
	p := Payload{JSON: []byte(`{"message_id": "ext-1", "status": "read"}`)}
	if err := a.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ev, err := a.Extract(p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ev.Kind != EventStatus || ev.DeliveryStatus == nil || *ev.DeliveryStatus != model.DeliveryRead {
		t.Errorf("status event = %+v", ev)
	}
}

func TestGenericValidateRejects(t *testing.T) {
	a := NewGenericAdapter()
	tests := []struct {
		name string
		body string
	}{
		{"missing sender", `{"content": "hi"}`},
		{"missing content", `{"sender_id": "x"}`},
		{"not json", `sender_id=x`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Validate(Payload{JSON: []byte(tc.body)}); !errors.Is(err, ErrValidation) {
				t.Errorf("Validate = %v, want ErrValidation", err)
			}
		})
	}
}
