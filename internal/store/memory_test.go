package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

func seedChat(t *testing.T, s *Stores) *model.Chat {
	t.Helper()
	ctx := context.Background()
	channel := &model.Channel{Name: "ch", Platform: model.PlatformGeneric}
	if err := s.Channels.Create(ctx, channel); err != nil {
		t.Fatal(err)
	}
	chat := &model.Chat{ExternalID: "ext-1", ChannelID: channel.ID}
	if err := s.Chats.Create(ctx, chat); err != nil {
		t.Fatal(err)
	}
	return chat
}

func TestChatUniqueExternalKey(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	chat := seedChat(t, s)

	dup := &model.Chat{ExternalID: "ext-1", ChannelID: chat.ChannelID}
	if err := s.Chats.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create = %v, want ErrDuplicate", err)
	}

	found, err := s.Chats.GetByExternal(ctx, chat.ChannelID, "ext-1")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != chat.ID {
		t.Errorf("GetByExternal returned %s, want %s", found.ID, chat.ID)
	}
	if _, err := s.Chats.GetByExternal(ctx, chat.ChannelID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key = %v, want ErrNotFound", err)
	}
}

func TestUpdateLastMessageIsMonotonic(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	chat := seedChat(t, s)

	t1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	if err := s.Chats.UpdateLastMessage(ctx, chat.ID, t2, model.SenderContact, "newer"); err != nil {
		t.Fatal(err)
	}
	// An older write must not regress the denormalized fields.
	if err := s.Chats.UpdateLastMessage(ctx, chat.ID, t1, model.SenderUser, "older"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Chats.Get(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastMessageTS.Equal(t2) || got.LastMessage != "newer" || got.LastSenderType != model.SenderContact {
		t.Errorf("chat = ts %v, msg %q, sender %q; want the newer write", got.LastMessageTS, got.LastMessage, got.LastSenderType)
	}
}

func TestListRecentKeepsNewestReturnsChronological(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	chat := seedChat(t, s)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"m0", "m1", "m2", "m3", "m4"} {
		msg := &model.Message{
			ChatID:     chat.ID,
			Content:    content,
			SenderType: model.SenderContact,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Messages.Create(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Messages.ListRecent(ctx, chat.ID, 3, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if got[i].Content != want {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Content, want)
		}
	}

	// since excludes older messages.
	got, err = s.Messages.ListRecent(ctx, chat.ID, 10, base.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "m3" {
		t.Errorf("windowed list = %v", got)
	}
}

func TestMessageGetByExternalID(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	chat := seedChat(t, s)

	msg := &model.Message{ExternalID: "wamid.9", ChatID: chat.ID, Content: "x", SenderType: model.SenderContact, Timestamp: time.Now()}
	if err := s.Messages.Create(ctx, msg); err != nil {
		t.Fatal(err)
	}

	found, err := s.Messages.GetByExternalID(ctx, "wamid.9")
	if err != nil || found.ID != msg.ID {
		t.Errorf("GetByExternalID = %v, %v", found, err)
	}
	if _, err := s.Messages.GetByExternalID(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty external id = %v, want ErrNotFound", err)
	}
}

func TestAgentListEligible(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	agents := []*model.Agent{
		{Name: "a-ready", WebhookURL: "http://a", Active: true},
		{Name: "b-no-url", Active: true},
		{Name: "c-inactive", WebhookURL: "http://c", Active: false},
	}
	for _, a := range agents {
		if err := s.Agents.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	eligible, err := s.Agents.ListEligible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 1 || eligible[0].Name != "a-ready" {
		t.Errorf("eligible = %v", eligible)
	}
}

func TestChatAgentPairUnique(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	chat := seedChat(t, s)

	agent := &model.Agent{Name: "a", WebhookURL: "http://a", Active: true}
	if err := s.Agents.Create(ctx, agent); err != nil {
		t.Fatal(err)
	}

	ca := &model.ChatAgent{ChatID: chat.ID, AgentID: agent.ID, Active: true}
	if err := s.ChatAgents.Create(ctx, ca); err != nil {
		t.Fatal(err)
	}
	dup := &model.ChatAgent{ChatID: chat.ID, AgentID: agent.ID}
	if err := s.ChatAgents.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate pair = %v, want ErrDuplicate", err)
	}

	all, err := s.ChatAgents.ListByChat(ctx, chat.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListByChat = %v, %v", all, err)
	}

	ca.Active = false
	if err := s.ChatAgents.Update(ctx, ca); err != nil {
		t.Fatal(err)
	}
	active, err := s.ChatAgents.ListActiveByChat(ctx, chat.ID)
	if err != nil || len(active) != 0 {
		t.Errorf("ListActiveByChat after deactivation = %v, %v", active, err)
	}
}
