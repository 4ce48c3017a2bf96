package persona

import "strings"

// Store exposes the debater personas to handlers and prompt assembly.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore 保存启动时加载的角色，只读，可并发访问。
type MemoryStore struct {
	items []Persona
	byID  map[string]int
}

// NewMemoryStore indexes personas by ID. A later entry with the same ID
// replaces the earlier one in place.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]int, len(items))}
	for _, item := range items {
		key := normalizeID(item.ID)
		if idx, ok := s.byID[key]; ok {
			s.items[idx] = item
			continue
		}
		s.byID[key] = len(s.items)
		s.items = append(s.items, item)
	}
	return s
}

// List returns the personas in load order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona; IDs match case-insensitively so a role
// name such as "Critic" resolves to the critic persona.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	idx, ok := s.byID[normalizeID(id)]
	if !ok {
		return Persona{}, false
	}
	return s.items[idx], true
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
