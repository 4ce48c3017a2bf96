package ai

import (
	"sort"
	"strings"
)

// Supported provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderLMStudio   = "lmstudio"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderArk        = "ark"
)

// ProviderInfo describes a provider for the frontend selector.
type ProviderInfo struct {
	Name         string `json:"name"`
	Format       string `json:"format"`
	Configured   bool   `json:"configured"`
	RequiresKey  bool   `json:"requiresKey"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

type endpoint struct {
	baseURL     string
	apiKey      string
	requiresKey bool
}

func (s *Service) endpointFor(provider string) (endpoint, error) {
	p := s.cfg
	switch provider {
	case ProviderOpenAI:
		return endpoint{baseURL: p.OpenAI.BaseURL, apiKey: p.OpenAI.APIKey, requiresKey: true}, nil
	case ProviderOpenRouter:
		return endpoint{baseURL: p.OpenRouter.BaseURL, apiKey: p.OpenRouter.APIKey, requiresKey: true}, nil
	case ProviderLMStudio:
		return endpoint{baseURL: p.LMStudio.BaseURL, apiKey: p.LMStudio.APIKey}, nil
	case ProviderAnthropic:
		return endpoint{baseURL: p.Anthropic.BaseURL, apiKey: p.Anthropic.APIKey, requiresKey: true}, nil
	case ProviderOllama:
		return endpoint{baseURL: p.Ollama.BaseURL}, nil
	default:
		return endpoint{}, &ConfigError{Provider: provider, Reason: "unknown provider"}
	}
}

// resolveKey prefers the key supplied with the request over the server's.
func (e endpoint) resolveKey(provider, requestKey string) (string, error) {
	if key := strings.TrimSpace(requestKey); key != "" {
		return key, nil
	}
	if e.apiKey != "" {
		return e.apiKey, nil
	}
	if e.requiresKey {
		return "", &ConfigError{Provider: provider, Reason: "missing API key"}
	}
	return "", nil
}

// Providers lists every supported provider and whether the server has
// credentials for it.
func (s *Service) Providers() []ProviderInfo {
	names := []string{ProviderOpenAI, ProviderOpenRouter, ProviderLMStudio, ProviderAnthropic, ProviderOllama}
	infos := make([]ProviderInfo, 0, len(names)+1)
	for _, name := range names {
		ep, _ := s.endpointFor(name)
		format, _ := FormatFor(name)
		infos = append(infos, ProviderInfo{
			Name:        name,
			Format:      format.String(),
			Configured:  !ep.requiresKey || ep.apiKey != "",
			RequiresKey: ep.requiresKey,
		})
	}
	infos = append(infos, ProviderInfo{
		Name:         ProviderArk,
		Format:       "sdk",
		Configured:   s.cfg.Ark.Enabled(),
		RequiresKey:  true,
		DefaultModel: s.cfg.Ark.Model,
	})

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

