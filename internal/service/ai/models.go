package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ListModels asks the provider which models it serves. Results are not
// cached; local servers change their model set at runtime.
func (s *Service) ListModels(ctx context.Context, provider, apiKey string) ([]string, error) {
	provider = normalizeProvider(provider)
	if provider == ProviderArk {
		if s.cfg.Ark.Model == "" {
			return []string{}, nil
		}
		return []string{s.cfg.Ark.Model}, nil
	}

	format, err := FormatFor(provider)
	if err != nil {
		return nil, err
	}
	ep, err := s.endpointFor(provider)
	if err != nil {
		return nil, err
	}
	key, err := ep.resolveKey(provider, apiKey)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(ep.baseURL, "/")
	var url string
	switch format {
	case FormatNDJSON:
		url = base + "/api/tags"
	case FormatAnthropicSSE:
		url = base + "/v1/models"
	default:
		url = base + "/models"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RequestError{Provider: provider, Err: err}
	}
	switch format {
	case FormatAnthropicSSE:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", s.cfg.Anthropic.Version)
	case FormatCloudSSE:
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(provider, resp)
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s model list: %w", provider, err)
	}

	models := make([]string, 0, len(payload.Data)+len(payload.Models))
	for _, m := range payload.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	for _, m := range payload.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	sort.Strings(models)
	return models, nil
}
