package conversation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-arena/backend/internal/service/chat"
	"github.com/zhouzirui/z-arena/backend/internal/store"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(store.NewMemoryStore())
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateConversation(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(r, http.MethodPost, "/conversations", map[string]string{"topic": "AI should be regulated"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var conv chat.Conversation
	if err := json.Unmarshal(resp.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if conv.ID == "" || conv.Topic != "AI should be regulated" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	resp = doJSON(r, http.MethodGet, "/conversations/"+conv.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCreateConversationMissingTopic(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(r, http.MethodPost, "/conversations", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(r, http.MethodGet, "/conversations/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSaveAndListMessages(t *testing.T) {
	r, chatSvc := setupRouter()

	conv, err := chatSvc.CreateConversation(t.Context(), "topic")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID+"/messages", map[string]any{
		"sender":     "user",
		"content":    "Critic, be harsher.",
		"isWhisper":  true,
		"targetRole": "critic",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(r, http.MethodGet, "/conversations/"+conv.ID+"/messages", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var messages []chat.Message
	if err := json.Unmarshal(resp.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(messages) != 1 || !messages[0].IsWhisper || messages[0].TargetRole != "critic" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestSaveMessageInvalidSender(t *testing.T) {
	r, chatSvc := setupRouter()
	conv, _ := chatSvc.CreateConversation(t.Context(), "topic")

	resp := doJSON(r, http.MethodPost, "/conversations/"+conv.ID+"/messages", map[string]string{
		"sender":  "audience",
		"content": "boo",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSaveMessageUnknownConversation(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(r, http.MethodPost, "/conversations/missing/messages", map[string]string{
		"sender":  "user",
		"content": "hello",
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
