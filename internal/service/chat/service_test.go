package chat_test

import (
	"context"
	"errors"
	"testing"

	modelchat "github.com/zhouzirui/z-arena/backend/internal/model/chat"
	chat "github.com/zhouzirui/z-arena/backend/internal/service/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

func TestServiceGetConversation(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "  Nuclear power is green  ")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	got, err := svc.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}

	if got.ID != conv.ID {
		t.Fatalf("unexpected conversation ID: got %s want %s", got.ID, conv.ID)
	}
	if got.Topic != "Nuclear power is green" {
		t.Fatalf("unexpected topic: got %q", got.Topic)
	}
}

func TestServiceGetConversationNotFound(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())

	if _, err := svc.GetConversation(context.Background(), "missing"); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestServiceSaveMessageValidation(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "topic")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	cases := []struct {
		name string
		msg  modelchat.Message
		want error
	}{
		{"unknown sender", modelchat.Message{Sender: "judge", Content: "x"}, chat.ErrInvalidSender},
		{"empty content", modelchat.Message{Sender: modelchat.SenderUser, Content: "  "}, chat.ErrContentRequired},
		{"whisper from ai", modelchat.Message{Sender: modelchat.SenderCritic, Content: "x", IsWhisper: true, TargetRole: "defender"}, chat.ErrInvalidWhisper},
		{"whisper to nobody", modelchat.Message{Sender: modelchat.SenderUser, Content: "x", IsWhisper: true, TargetRole: "audience"}, chat.ErrInvalidWhisper},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.msg.ConversationID = conv.ID
			if _, err := svc.SaveMessage(ctx, tc.msg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !chat.IsValidationError(tc.want) {
				t.Fatalf("%v should be a validation error", tc.want)
			}
		})
	}
}

func TestServiceSaveMessageClearsTargetOnPublicMessage(t *testing.T) {
	svc := chat.NewService(store.NewMemoryStore())
	ctx := context.Background()

	conv, _ := svc.CreateConversation(ctx, "topic")
	saved, err := svc.SaveMessage(ctx, modelchat.Message{
		ConversationID: conv.ID,
		Sender:         modelchat.SenderUser,
		Content:        "hello",
		TargetRole:     "critic",
	})
	if err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}
	if saved.TargetRole != "" {
		t.Fatalf("expected target cleared, got %q", saved.TargetRole)
	}

	transcript, err := svc.LoadTranscript(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 1 || transcript[0].ID != saved.ID {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}
