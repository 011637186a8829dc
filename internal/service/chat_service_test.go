package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"teamchat/internal/domain"
	"teamchat/internal/repository/memory"
	"teamchat/internal/testutil"
)

func newChatService(t *testing.T, channels ...string) (*ChatService, *testutil.MockMessageStore, *testutil.RecordingBroadcaster) {
	t.Helper()
	store := testutil.NewMockMessageStore(channels...)
	hub := &testutil.RecordingBroadcaster{Delivered: 1}
	return NewChatService(store, hub, nil, 0), store, hub
}

func TestChatService_CreateMessage_Success(t *testing.T) {
	svc, store, hub := newChatService(t, "general")

	msg, err := svc.CreateMessage(context.Background(), "alice", "general", "  hello  ", "conn-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if msg.ID == "" {
		t.Error("Expected message ID to be set")
	}
	if msg.Content != "hello" {
		t.Errorf("Expected trimmed content 'hello', got %q", msg.Content)
	}
	if len(store.Messages) != 1 {
		t.Errorf("Expected 1 message in store, got %d", len(store.Messages))
	}

	events := hub.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", len(events))
	}
	if events[0].Event.Type != domain.EventNewMessage || events[0].ChannelID != "general" {
		t.Errorf("Unexpected broadcast: %+v", events[0])
	}
	if events[0].Exclude != "conn-1" {
		t.Errorf("Expected sender connection to be excluded, got %q", events[0].Exclude)
	}
}

func TestChatService_CreateMessage_Validation(t *testing.T) {
	svc, store, hub := newChatService(t, "general")
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   string
		channel string
		content string
		wantErr error
	}{
		{"empty content", "alice", "general", "   ", domain.ErrEmptyContent},
		{"content too long", "alice", "general", strings.Repeat("x", domain.MaxContentLength+1), domain.ErrContentTooLong},
		{"missing actor", "", "general", "hi", domain.ErrMissingActor},
		{"missing channel id", "alice", "", "hi", domain.ErrInvalidArgument},
		{"unknown channel", "alice", "missing", "hi", domain.ErrChannelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateMessage(ctx, tt.actor, tt.channel, tt.content, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if len(store.Messages) != 0 {
		t.Errorf("Expected no stored messages, got %d", len(store.Messages))
	}
	if len(hub.Events()) != 0 {
		t.Errorf("Expected no broadcasts, got %d", len(hub.Events()))
	}
}

func TestChatService_CreateMessage_AcceptsMaxLength(t *testing.T) {
	svc, _, _ := newChatService(t, "general")

	content := strings.Repeat("é", domain.MaxContentLength)
	msg, err := svc.CreateMessage(context.Background(), "alice", "general", content, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if msg.Content != content {
		t.Error("Expected content to be stored unchanged")
	}
}

func TestChatService_CreateMessage_StoreFailureIsNotBroadcast(t *testing.T) {
	svc, store, hub := newChatService(t, "general")
	store.AppendFunc = func(ctx context.Context, channelID, authorID, content string) (*domain.Message, error) {
		return nil, testutil.ErrMockFailure
	}

	_, err := svc.CreateMessage(context.Background(), "alice", "general", "hi", "")
	if !errors.Is(err, testutil.ErrMockFailure) {
		t.Fatalf("Expected store error, got: %v", err)
	}
	if len(hub.Events()) != 0 {
		t.Error("Expected no broadcast after failed append")
	}
}

func TestChatService_CreateMessage_BroadcastOrderMatchesLog(t *testing.T) {
	store := memory.NewStore()
	ch := &domain.Channel{Name: "general"}
	if err := store.Create(context.Background(), ch); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	hub := &testutil.RecordingBroadcaster{}
	svc := NewChatService(store, hub, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.CreateMessage(context.Background(), "alice", ch.ID, fmt.Sprintf("m%d", i), ""); err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		}(i)
	}
	wg.Wait()

	stored, total, err := store.List(context.Background(), ch.ID, 1, 100)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	events := hub.Events()
	if total != 50 || len(events) != 50 {
		t.Fatalf("Expected 50 stored and 50 broadcast, got %d and %d", total, len(events))
	}
	for i, evt := range events {
		msg := evt.Event.Data.(*domain.Message)
		if msg.ID != stored[i].ID {
			t.Fatalf("Broadcast %d is %s, log has %s", i, msg.ID, stored[i].ID)
		}
	}
}

func TestChatService_EditMessage(t *testing.T) {
	svc, _, hub := newChatService(t, "general")
	ctx := context.Background()

	msg, err := svc.CreateMessage(ctx, "alice", "general", "first", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	edited, err := svc.EditMessage(ctx, "alice", msg.ID, " second ", "conn-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if edited.Content != "second" {
		t.Errorf("Expected content 'second', got %q", edited.Content)
	}

	events := hub.Events()
	last := events[len(events)-1]
	if last.Event.Type != domain.EventMessageUpdated || last.ChannelID != "general" || last.Exclude != "conn-1" {
		t.Errorf("Unexpected broadcast: %+v", last)
	}

	if _, err := svc.EditMessage(ctx, "bob", msg.ID, "hijack", ""); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound for non-owner, got %v", err)
	}
	if _, err := svc.EditMessage(ctx, "alice", msg.ID, "  ", ""); !errors.Is(err, domain.ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.EditMessage(ctx, "alice", "", "x", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty id, got %v", err)
	}
}

func TestChatService_DeleteMessage(t *testing.T) {
	svc, store, hub := newChatService(t, "general")
	ctx := context.Background()

	msg, err := svc.CreateMessage(ctx, "alice", "general", "bye", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := svc.DeleteMessage(ctx, "bob", msg.ID, ""); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound for non-owner, got %v", err)
	}
	if err := svc.DeleteMessage(ctx, "alice", msg.ID, ""); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(store.Messages) != 0 {
		t.Errorf("Expected message to be removed, %d remain", len(store.Messages))
	}

	events := hub.Events()
	last := events[len(events)-1]
	if last.Event.Type != domain.EventMessageDeleted {
		t.Fatalf("Expected message_deleted broadcast, got %s", last.Event.Type)
	}
	data := last.Event.Data.(map[string]string)
	if data["id"] != msg.ID || data["channel_id"] != "general" {
		t.Errorf("Unexpected delete payload: %v", data)
	}

	if err := svc.DeleteMessage(ctx, "alice", msg.ID, ""); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound on second delete, got %v", err)
	}
}

func TestChatService_ListMessages(t *testing.T) {
	svc, _, _ := newChatService(t, "general")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateMessage(ctx, "alice", "general", fmt.Sprintf("m%d", i), ""); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}

	page, err := svc.ListMessages(ctx, "general", 2, 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if page.TotalCount != 5 || page.PageCount != 3 {
		t.Errorf("Expected total 5 and 3 pages, got %d and %d", page.TotalCount, page.PageCount)
	}
	if len(page.Messages) != 2 || page.Messages[0].Content != "m2" || page.Messages[1].Content != "m3" {
		t.Errorf("Unexpected page contents: %+v", page.Messages)
	}

	page, err = svc.ListMessages(ctx, "general", 9, 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(page.Messages) != 0 || page.Messages == nil {
		t.Errorf("Expected an empty, non-nil page, got %+v", page.Messages)
	}
}

func TestChatService_ListMessages_InvalidParams(t *testing.T) {
	svc, _, _ := newChatService(t, "general")
	ctx := context.Background()

	tests := []struct {
		name     string
		channel  string
		page     int
		pageSize int
		wantErr  error
	}{
		{"zero page", "general", 0, 10, domain.ErrInvalidArgument},
		{"zero page size", "general", 1, 0, domain.ErrInvalidArgument},
		{"page size over max", "general", 1, DefaultMaxPageSize + 1, domain.ErrInvalidArgument},
		{"unknown channel", "missing", 1, 10, domain.ErrChannelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ListMessages(ctx, tt.channel, tt.page, tt.pageSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChatService_PublishTaskChange(t *testing.T) {
	store := testutil.NewMockMessageStore()
	hub := &testutil.RecordingBroadcaster{}
	relay := &testutil.MockTaskRelay{}
	svc := NewChatService(store, hub, relay, 0)

	payload := json.RawMessage(`{"task_id":"t1","status":"done"}`)
	if err := svc.PublishTaskChange(context.Background(), "alice", payload, "conn-1"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	events := hub.Events()
	if len(events) != 1 || events[0].Scope != "global" || events[0].Event.Type != domain.EventTaskChanged {
		t.Fatalf("Expected one global task_changed event, got %+v", events)
	}
	if events[0].Exclude != "conn-1" {
		t.Errorf("Expected originating connection to be excluded, got %q", events[0].Exclude)
	}

	changes := relay.Changes()
	if len(changes) != 1 || changes[0].ActorID != "alice" || string(changes[0].Payload) != string(payload) {
		t.Errorf("Expected change to be relayed unchanged, got %+v", changes)
	}
}

func TestChatService_PublishTaskChange_InvalidPayload(t *testing.T) {
	svc, _, hub := newChatService(t)

	for _, payload := range []json.RawMessage{nil, json.RawMessage(`{broken`)} {
		if err := svc.PublishTaskChange(context.Background(), "alice", payload, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument for %q, got %v", payload, err)
		}
	}
	if len(hub.Events()) != 0 {
		t.Error("Expected no broadcast for invalid payloads")
	}
}

func TestChatService_PublishTaskChange_RelayFailureIsNotReturned(t *testing.T) {
	hub := &testutil.RecordingBroadcaster{}
	relay := &testutil.MockTaskRelay{
		PublishFunc: func(ctx context.Context, change domain.TaskChange) error {
			return testutil.ErrMockFailure
		},
	}
	svc := NewChatService(testutil.NewMockMessageStore(), hub, relay, 0)

	if err := svc.PublishTaskChange(context.Background(), "alice", json.RawMessage(`{}`), ""); err != nil {
		t.Fatalf("Expected relay failure to be swallowed, got: %v", err)
	}
	if len(hub.Events()) != 1 {
		t.Error("Expected local broadcast despite relay failure")
	}
}
