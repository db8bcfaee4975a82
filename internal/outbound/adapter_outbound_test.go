package outbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

func twilioChannel(baseURL string) *model.Channel {
	return &model.Channel{
		Platform: model.PlatformWhatsAppTwilio,
		Credentials: map[string]string{
			"account_sid": "AC0123456789",
			"auth_token":  "secret",
			"from_number": "+15550001111",
		},
		SendAPIURL: baseURL,
	}
}

func TestTwilioSendSuccess(t *testing.T) {
	var gotForm url.Values
	var gotPath, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"sid": "SM999", "status": "queued"})
	}))
	defer srv.Close()

	chat := &model.Chat{ExternalID: "+1 (555) 123-4567"}
	msg := &model.Message{Content: "hi there"}
	res := NewTwilioAdapter().Send(context.Background(), twilioChannel(srv.URL), chat, msg)

	if res.Status != SendSuccess {
		t.Fatalf("status = %v, err = %q", res.Status, res.Err)
	}
	if res.ExternalID != "SM999" || res.PlatformStatus != "queued" {
		t.Errorf("result = %+v", res)
	}
	if gotPath != "/Accounts/AC0123456789/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC0123456789" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotForm.Get("To") != "whatsapp:+15551234567" {
		t.Errorf("To = %q, want digits-only with whatsapp prefix", gotForm.Get("To"))
	}
	if gotForm.Get("From") != "whatsapp:+15550001111" {
		t.Errorf("From = %q", gotForm.Get("From"))
	}
	if gotForm.Get("Body") != "hi there" {
		t.Errorf("Body = %q", gotForm.Get("Body"))
	}
}

func TestTwilioSandboxFallback(t *testing.T) {
	var gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		gotFrom = form.Get("From")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"sid": "SM1", "status": "queued"})
	}))
	defer srv.Close()

	channel := twilioChannel(srv.URL)
	delete(channel.Credentials, "from_number")
	res := NewTwilioAdapter().Send(context.Background(), channel, &model.Chat{ExternalID: "15551234567"}, &model.Message{Content: "x"})

	if res.Status != SendSuccess {
		t.Fatalf("status = %v", res.Status)
	}
	if gotFrom != "whatsapp:"+twilioSandboxNumber {
		t.Errorf("From = %q, want sandbox fallback", gotFrom)
	}
}

func TestTwilioAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"code": 21211, "message": "invalid 'To' number"})
	}))
	defer srv.Close()

	res := NewTwilioAdapter().Send(context.Background(), twilioChannel(srv.URL), &model.Chat{ExternalID: "123"}, &model.Message{Content: "x"})
	if res.Status != SendError || res.ErrType != errTypeAPIError {
		t.Fatalf("result = %+v", res)
	}
	if res.ErrCode != "21211" || !strings.Contains(res.Err, "invalid 'To' number") {
		t.Errorf("error mapping = %+v", res)
	}
}

func TestTwilioConfigValidation(t *testing.T) {
	a := NewTwilioAdapter()
	tests := []struct {
		name  string
		creds map[string]string
		want  bool
	}{
		{"valid", map[string]string{"account_sid": "AC1", "auth_token": "t"}, true},
		{"sid without AC prefix", map[string]string{"account_sid": "XX1", "auth_token": "t"}, false},
		{"missing token", map[string]string{"account_sid": "AC1"}, false},
		{"empty", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := &model.Channel{Credentials: tc.creds}
			if got := a.ValidateChannelConfig(ch); got != tc.want {
				t.Errorf("ValidateChannelConfig = %v, want %v", got, tc.want)
			}
		})
	}
}

func metaChannel(baseURL string) *model.Channel {
	return &model.Channel{
		Platform: model.PlatformWhatsAppMeta,
		Credentials: map[string]string{
			"access_token":    "token-xyz",
			"phone_number_id": "1029384756",
		},
		SendAPIURL: baseURL,
	}
}

func TestMetaSendSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.777"}},
		})
	}))
	defer srv.Close()

	chat := &model.Chat{ExternalID: "+1-555-123-4567"}
	res := NewMetaAdapter().Send(context.Background(), metaChannel(srv.URL), chat, &model.Message{Content: "hello"})

	if res.Status != SendSuccess || res.ExternalID != "wamid.777" {
		t.Fatalf("result = %+v", res)
	}
	if gotPath != "/1029384756/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token-xyz" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["to"] != "15551234567" {
		t.Errorf("body = %v", gotBody)
	}
	if text, _ := gotBody["text"].(map[string]any); text["body"] != "hello" {
		t.Errorf("text = %v", gotBody["text"])
	}
}

func TestMetaAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "token expired", "type": "OAuthException", "code": 190},
		})
	}))
	defer srv.Close()

	res := NewMetaAdapter().Send(context.Background(), metaChannel(srv.URL), &model.Chat{ExternalID: "1555"}, &model.Message{Content: "x"})
	if res.Status != SendError || res.ErrType != errTypeAPIError {
		t.Fatalf("result = %+v", res)
	}
	if res.ErrCode != "190" || res.Err != "token expired" {
		t.Errorf("error mapping = %+v", res)
	}
}

func TestTelegramSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 512,
				"date":       1717243200,
				"chat":       map[string]any{"id": 777, "type": "private"},
			},
		})
	}))
	defer srv.Close()

	channel := &model.Channel{
		Platform:    model.PlatformTelegram,
		Credentials: map[string]string{"bot_token": "123456:ABCDEF"},
		SendAPIURL:  srv.URL,
	}
	res := NewTelegramAdapter().Send(context.Background(), channel, &model.Chat{ExternalID: "777"}, &model.Message{Content: "<b>hi</b>"})
	if res.Status != SendSuccess {
		t.Fatalf("status = %v, err = %q", res.Status, res.Err)
	}
	if res.ExternalID != "512" {
		t.Errorf("ExternalID = %q, want 512", res.ExternalID)
	}
}

func TestTelegramRejectsNonNumericChatID(t *testing.T) {
	channel := &model.Channel{Credentials: map[string]string{"bot_token": "123456:ABCDEF"}}
	res := NewTelegramAdapter().Send(context.Background(), channel, &model.Chat{ExternalID: "not-a-number"}, &model.Message{Content: "x"})
	if res.Status != SendError || res.ErrType != errTypeInvalidConfig {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenericSend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "ext-42"})
	}))
	defer srv.Close()

	channel := &model.Channel{Platform: model.PlatformGeneric, SendAPIURL: srv.URL}
	chat := &model.Chat{ExternalID: "peer-1"}
	res := NewGenericAdapter().Send(context.Background(), channel, chat, &model.Message{Content: "ping", SenderType: model.SenderUser})

	if res.Status != SendSuccess || res.ExternalID != "ext-42" {
		t.Fatalf("result = %+v", res)
	}
	if gotBody["content"] != "ping" || gotBody["external_id"] != "peer-1" || gotBody["sender_type"] != "USER" {
		t.Errorf("body = %v", gotBody)
	}

	t.Run("no send url", func(t *testing.T) {
		res := NewGenericAdapter().Send(context.Background(), &model.Channel{}, chat, &model.Message{Content: "x"})
		if res.Status != SendError || res.ErrType != errTypeInvalidConfig {
			t.Errorf("result = %+v", res)
		}
	})
}
