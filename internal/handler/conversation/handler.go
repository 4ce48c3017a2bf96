package conversation

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-arena/backend/internal/service/chat"
	"github.com/zhouzirui/z-arena/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreateConversation)
	r.Get("/conversations/{conversationID}", h.handleGetConversation)
	r.Get("/conversations/{conversationID}/messages", h.handleListMessages)
	r.Post("/conversations/{conversationID}/messages", h.handleSaveMessage)
}

// handleCreateConversation 创建辩论会话
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Topic string `json:"topic"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.chatSvc.CreateConversation(r.Context(), payload.Topic)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSaveMessage 保存消息（主持人发言、悄悄话或客户端收尾的回合）
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Sender     chat.Sender `json:"sender"`
		Content    string      `json:"content"`
		IsWhisper  bool        `json:"isWhisper"`
		TargetRole string      `json:"targetRole"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.chatSvc.SaveMessage(r.Context(), chat.Message{
		ConversationID: chi.URLParam(r, "conversationID"),
		Sender:         payload.Sender,
		Content:        payload.Content,
		IsWhisper:      payload.IsWhisper,
		TargetRole:     payload.TargetRole,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, message)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case chatService.IsValidationError(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("[conversation] storage error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "storage unavailable")
	}
}
