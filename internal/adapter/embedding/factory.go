package embedding

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"storefront/config"
	"storefront/internal/domain"
	"storefront/internal/port"
)

// New builds the embedder for a model profile. The provider is selected once,
// here, rather than on every call.
func New(m config.ModelConfig) (port.Embedder, error) {
	switch m.Provider {
	case "openai":
		return NewOpenAIEmbedder(m.APIKeyEnv, m.Model, m.BaseURL, m.Dimension)
	case "voyage":
		return NewVoyageEmbedder(m.APIKeyEnv, m.Model, m.BaseURL, m.Dimension)
	case "gemini":
		return NewGeminiEmbedder(m.APIKeyEnv, m.Model, m.BaseURL, m.Dimension)
	case "mock":
		return NewMockEmbedder(m.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", m.Provider)
	}
}

// Builder constructs an embedder for a profile.
type Builder func(config.ModelConfig) (port.Embedder, error)

// Registry resolves model profiles to embedders and index namespaces.
// Embedders are built on first use so a missing API key only affects the
// profile that needs it.
type Registry struct {
	models           map[string]config.ModelConfig
	defaultModel     string
	defaultNamespace string
	index            port.VectorIndex
	build            Builder

	mu    sync.Mutex
	built map[string]port.Embedder
}

func NewRegistry(cfg *config.Config, index port.VectorIndex, build Builder) *Registry {
	if build == nil {
		build = New
	}
	models := make(map[string]config.ModelConfig, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m.Name] = m
	}
	return &Registry{
		models:           models,
		defaultModel:     cfg.DefaultModel,
		defaultNamespace: cfg.VectorIndex.DefaultNamespace,
		index:            index,
		build:            build,
		built:            make(map[string]port.Embedder),
	}
}

func (r *Registry) Profile(name string) (port.ModelProfile, error) {
	if name == "" {
		name = r.defaultModel
	}
	m, ok := r.models[name]
	if !ok {
		return port.ModelProfile{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, name)
	}

	emb, err := r.embedder(m)
	if err != nil {
		return port.ModelProfile{}, err
	}

	ns := m.Namespace
	if ns == "" {
		ns = r.defaultNamespace
	}

	return port.ModelProfile{
		Name:      m.Name,
		Embedder:  emb,
		Index:     m.Index,
		Namespace: ns,
		Vectors:   r.index.Namespace(m.Index, ns),
		Sync:      m.Sync,
	}, nil
}

func (r *Registry) Synced() ([]port.ModelProfile, error) {
	var (
		out  []port.ModelProfile
		errs []error
	)
	for _, name := range r.Names() {
		if !r.models[name].Sync {
			continue
		}
		p, err := r.Profile(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

// Names returns the configured profile names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) embedder(m config.ModelConfig) (port.Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emb, ok := r.built[m.Name]; ok {
		return emb, nil
	}
	emb, err := r.build(m)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}
	r.built[m.Name] = emb
	return emb, nil
}
