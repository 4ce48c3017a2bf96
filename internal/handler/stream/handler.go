package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	modeldebate "github.com/zhouzirui/z-arena/backend/internal/model/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/internal/service/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/relay"
	"github.com/zhouzirui/z-arena/backend/internal/store"
	"github.com/zhouzirui/z-arena/backend/pkg/utils"
)

// Handler relays debate turns to the browser via Server-Sent Events
type Handler struct {
	debate *debate.Service
	relay  *relay.Controller
}

// New creates a new stream handler
func New(debateSvc *debate.Service) *Handler {
	return &Handler{
		debate: debateSvc,
		relay:  relay.NewController(),
	}
}

// RegisterRoutes mounts the turn endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/debate/turn", h.handleTurn)
}

// TurnResponse is the body of the non-streaming fallback.
type TurnResponse struct {
	Content   string `json:"content"`
	MessageID string `json:"messageId,omitempty"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req modeldebate.TurnRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.debate.SessionTimeout())
	defer cancel()

	turn, err := h.debate.StartTurn(ctx, req)
	if err != nil {
		RespondStartError(w, err)
		return
	}

	writer, canFlush := utils.NewSSEWriter(ctx, w)
	if !canFlush || !h.debate.StreamingEnabled() || !acceptsEventStream(r) {
		h.respondCollected(ctx, w, turn)
		return
	}

	writer.Open()
	result := h.relay.Run(ctx, turn.Session, turn.Stream, writer)
	if _, err := h.debate.FinishTurn(ctx, turn, result); err != nil {
		log.Printf("[stream] session=%s finish failed: %v", turn.Session.ID, err)
	}
}

func (h *Handler) respondCollected(ctx context.Context, w http.ResponseWriter, turn *debate.Turn) {
	result := h.debate.CollectTurn(ctx, turn)
	stored, finishErr := h.debate.FinishTurn(ctx, turn, result)

	switch result.State {
	case relay.StateCompleted:
		if finishErr != nil {
			log.Printf("[stream] session=%s finish failed: %v", turn.Session.ID, finishErr)
		}
		resp := TurnResponse{Content: result.Text, SessionID: turn.Session.ID}
		if stored != nil {
			resp.MessageID = stored.ID
		}
		utils.RespondJSON(w, http.StatusOK, resp)
	case relay.StateFailed:
		utils.RespondJSON(w, http.StatusBadGateway, map[string]string{
			"error":   result.Err.Error(),
			"content": result.Text,
		})
	default:
		log.Printf("[stream] session=%s client went away before collection finished", turn.Session.ID)
	}
}

// RespondStartError maps errors raised before any output to HTTP statuses.
func RespondStartError(w http.ResponseWriter, err error) {
	var reqErr *ai.RequestError
	switch {
	case debate.IsClientError(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &reqErr):
		utils.RespondJSON(w, http.StatusBadGateway, map[string]any{
			"error":          reqErr.Error(),
			"upstreamStatus": reqErr.StatusCode,
		})
	default:
		log.Printf("[stream] turn failed to start: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to start turn")
	}
}

func acceptsEventStream(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		if strings.Contains(accept, "text/event-stream") {
			return true
		}
	}
	return false
}
