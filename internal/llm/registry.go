// Package llm provides the model registry and the fallback client used
// for every text-generation call. All backends speak the OpenAI
// chat-completions protocol; they differ only in base URL and API key.
package llm

import (
	"fmt"
	"strconv"
	"strings"

	"mailmind/internal/models"
)

// Backend names. Each maps to one configured completion endpoint.
const (
	BackendOpenAI     = "openai"
	BackendGroq       = "groq"
	BackendOpenRouter = "openrouter"
)

// Registry holds the available model descriptors with O(1) lookup by id
// and exactly one default.
type Registry struct {
	byID      map[string]models.ModelDescriptor
	ordered   []models.ModelDescriptor
	defaultID string
}

// NewRegistry validates descriptors and builds the registry. Exactly one
// descriptor must be marked default.
func NewRegistry(descriptors []models.ModelDescriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("model registry requires at least one descriptor")
	}

	r := &Registry{
		byID:    make(map[string]models.ModelDescriptor, len(descriptors)),
		ordered: make([]models.ModelDescriptor, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" || d.Name == "" || d.Backend == "" {
			return nil, fmt.Errorf("model descriptor %q missing id, name or backend", d.ID)
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.ordered = append(r.ordered, d)
		if d.Default {
			if r.defaultID != "" {
				return nil, fmt.Errorf("multiple default models: %q and %q", r.defaultID, d.ID)
			}
			r.defaultID = d.ID
		}
	}
	if r.defaultID == "" {
		return nil, fmt.Errorf("no default model among %d descriptors", len(descriptors))
	}
	return r, nil
}

// Lookup returns the descriptor for an id.
func (r *Registry) Lookup(id string) (models.ModelDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Default returns the default descriptor.
func (r *Registry) Default() models.ModelDescriptor {
	return r.byID[r.defaultID]
}

// FallbacksFor returns every other model id in registration order,
// the default chain used when a caller names no explicit fallbacks.
func (r *Registry) FallbacksFor(primaryID string) []string {
	var ids []string
	for _, d := range r.ordered {
		if d.ID != primaryID {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// DefaultDescriptors is the built-in registry used when the MODELS env
// override is absent.
func DefaultDescriptors() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{ID: "gpt-4o", Name: "gpt-4o", Backend: BackendOpenAI, ContextWindow: 128000, Default: true},
		{ID: "gpt-4o-mini", Name: "gpt-4o-mini", Backend: BackendOpenAI, ContextWindow: 128000},
		{ID: "llama-3.3-70b", Name: "llama-3.3-70b-versatile", Backend: BackendGroq, ContextWindow: 131072},
		{ID: "mistral-small", Name: "mistralai/mistral-small-3.1-24b-instruct", Backend: BackendOpenRouter, ContextWindow: 96000},
	}
}

// ParseDescriptors parses the MODELS override. The format is a
// semicolon-separated list of "id:name:backend:contextWindow[:default]".
func ParseDescriptors(spec string) ([]models.ModelDescriptor, error) {
	var descriptors []models.ModelDescriptor
	for _, item := range strings.Split(spec, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid model spec %q: want id:name:backend:contextWindow[:default]", item)
		}
		window, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("invalid context window in model spec %q: %w", item, err)
		}
		descriptors = append(descriptors, models.ModelDescriptor{
			ID:            parts[0],
			Name:          parts[1],
			Backend:       parts[2],
			ContextWindow: window,
			Default:       len(parts) > 4 && parts[4] == "default",
		})
	}
	return descriptors, nil
}
