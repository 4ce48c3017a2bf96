package provider

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/pkg/utils"
)

// Catalog lists providers and the models they serve.
type Catalog interface {
	Providers() []ai.ProviderInfo
	ListModels(ctx context.Context, provider, apiKey string) ([]string, error)
}

// Handler exposes the provider catalog to the frontend selector.
type Handler struct {
	catalog Catalog
}

func New(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/providers", h.handleListProviders)
	r.Get("/providers/{provider}/models", h.handleListModels)
}

func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalog.Providers())
}

// handleListModels accepts a user supplied key in X-Provider-Key so the
// key never appears in URLs or access logs.
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	models, err := h.catalog.ListModels(r.Context(), provider, r.Header.Get("X-Provider-Key"))
	if err != nil {
		var cfgErr *ai.ConfigError
		var reqErr *ai.RequestError
		switch {
		case errors.As(err, &cfgErr):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &reqErr):
			log.Printf("[provider] list models for %s failed: %v", provider, err)
			utils.RespondError(w, http.StatusBadGateway, err.Error())
		default:
			log.Printf("[provider] list models for %s failed: %v", provider, err)
			utils.RespondError(w, http.StatusInternalServerError, "failed to list models")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"models":   models,
	})
}
