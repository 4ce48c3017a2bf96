package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-arena/backend/internal/handler/conversation"
	"github.com/zhouzirui/z-arena/backend/internal/handler/persona"
	"github.com/zhouzirui/z-arena/backend/internal/handler/provider"
	"github.com/zhouzirui/z-arena/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-arena/backend/internal/middleware"
	personaModel "github.com/zhouzirui/z-arena/backend/internal/model/persona"
	chatService "github.com/zhouzirui/z-arena/backend/internal/service/chat"
	"github.com/zhouzirui/z-arena/backend/internal/service/debate"
	"github.com/zhouzirui/z-arena/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, debateSvc *debate.Service, catalog provider.Catalog) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	personaHandler := persona.New(personas)
	conversationHandler := conversation.New(chatSvc)
	providerHandler := provider.New(catalog)
	streamHandler := stream.New(debateSvc)
	wsHandler := stream.NewWebSocketHandler(debateSvc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		personaHandler.RegisterRoutes(api)
		conversationHandler.RegisterRoutes(api)
		providerHandler.RegisterRoutes(api)

		// Debate turns: SSE (with JSON fallback) and WebSocket
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
