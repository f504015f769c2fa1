package llmbridge

import (
	"fmt"
	"strings"
	"sync"
)

// Registry resolves a "provider/model" string to a registered Provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider keyed by its own ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get looks up a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, newError(ErrUnsupportedModel, fmt.Sprintf("provider not registered: %s", providerID), nil)
	}
	return p, nil
}

// Resolve splits "provider/model" and returns the registered provider plus
// the bare model id, or treats the whole string as a model id and returns
// a registered provider whose Models lists it when no "/" is present. If
// several providers list the same id, which one is returned is not defined.
func (r *Registry) Resolve(modelString string) (Provider, string, error) {
	providerID, modelID := splitModelString(modelString)
	if providerID != "" {
		p, err := r.Get(providerID)
		if err != nil {
			return nil, "", err
		}
		return p, modelID, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		for _, m := range p.Models() {
			if m.ID == modelID {
				return p, modelID, nil
			}
		}
	}
	return nil, "", newError(ErrUnsupportedModel, fmt.Sprintf("no provider serves model %q", modelString), nil)
}

func splitModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}
