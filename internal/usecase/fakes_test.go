package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"storefront/internal/adapter/repository"
	"storefront/internal/domain"
	"storefront/internal/port"
)

var errBoom = errors.New("boom")

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	vector []float32
	err    error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	if e.vector != nil {
		return e.vector, nil
	}
	return []float32{1, 0}, nil
}

func (e *fakeEmbedder) Dimension() int    { return 2 }
func (e *fakeEmbedder) ModelName() string { return "fake" }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type metadataUpdate struct {
	id       string
	values   []float32
	metadata map[string]string
}

type fakeNamespace struct {
	mu        sync.Mutex
	matches   []port.VectorMatch
	queryErr  error
	upsertErr error
	updateErr error
	deleteErr error
	upserts   []port.VectorRecord
	updates   []metadataUpdate
	deletes   []string
	queries   int
}

func (n *fakeNamespace) Upsert(ctx context.Context, records []port.VectorRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.upsertErr != nil {
		return n.upsertErr
	}
	n.upserts = append(n.upserts, records...)
	return nil
}

func (n *fakeNamespace) Update(ctx context.Context, id string, values []float32, metadata map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updateErr != nil {
		return n.updateErr
	}
	n.updates = append(n.updates, metadataUpdate{id: id, values: values, metadata: metadata})
	return nil
}

func (n *fakeNamespace) Delete(ctx context.Context, ids []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.deleteErr != nil {
		return n.deleteErr
	}
	n.deletes = append(n.deletes, ids...)
	return nil
}

func (n *fakeNamespace) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]port.VectorMatch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queries++
	if n.queryErr != nil {
		return nil, n.queryErr
	}
	out := n.matches
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// fakeIndex hands out namespaces keyed by "index/namespace".
type fakeIndex struct {
	namespaces map[string]*fakeNamespace
}

func (i *fakeIndex) Namespace(index, namespace string) port.VectorNamespace {
	key := index + "/" + namespace
	if i.namespaces == nil {
		i.namespaces = make(map[string]*fakeNamespace)
	}
	ns, ok := i.namespaces[key]
	if !ok {
		ns = &fakeNamespace{}
		i.namespaces[key] = ns
	}
	return ns
}

type fakeCatalog struct {
	profiles map[string]port.ModelProfile
	def      string
	err      error
}

func singleProfile(emb port.Embedder, ns port.VectorNamespace) *fakeCatalog {
	return &fakeCatalog{
		def: "fake",
		profiles: map[string]port.ModelProfile{
			"fake": {Name: "fake", Embedder: emb, Index: "products", Namespace: "ns", Vectors: ns, Sync: true},
		},
	}
}

func (c *fakeCatalog) Profile(name string) (port.ModelProfile, error) {
	if name == "" {
		name = c.def
	}
	p, ok := c.profiles[name]
	if !ok {
		return port.ModelProfile{}, domain.ErrUnknownModel
	}
	if c.err != nil {
		return port.ModelProfile{}, c.err
	}
	return p, nil
}

func (c *fakeCatalog) Synced() ([]port.ModelProfile, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []port.ModelProfile
	for _, name := range c.Names() {
		if p := c.profiles[name]; p.Sync {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// recordingRepo wraps a real repository, recording id lookups and injecting
// failures.
type recordingRepo struct {
	port.ProductRepository
	fetched   [][]int64
	tokensErr error
	idsErr    error
}

func (r *recordingRepo) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	r.fetched = append(r.fetched, append([]int64{}, ids...))
	if r.idsErr != nil {
		return nil, r.idsErr
	}
	return r.ProductRepository.FindByIDs(ctx, ids)
}

func (r *recordingRepo) FindByTokens(ctx context.Context, tokens []string) ([]domain.Product, error) {
	if r.tokensErr != nil {
		return nil, r.tokensErr
	}
	return r.ProductRepository.FindByTokens(ctx, tokens)
}

type stubImages struct{}

func (stubImages) ImageURL(images []string) string {
	if len(images) == 0 {
		return "/placeholder.jpg"
	}
	return images[0]
}

// seedCatalog stores products 1..3 in a memory repository.
func seedCatalog(t *testing.T) *recordingRepo {
	t.Helper()
	repo := repository.NewMemoryStore()
	for _, p := range []domain.Product{
		{Name: "Blue Desk Lamp", Description: "LED reading light", Categories: []string{"Lighting"}, Price: 2999, Images: []string{"lamp.jpg"}},
		{Name: "Carbon Tripod", Description: "Travel tripod", Categories: []string{"Cameras"}, Price: 8999},
		{Name: "Red Vase", Description: "Ceramic", Categories: []string{"Decor"}, Price: 1500},
	} {
		if _, err := repo.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	return &recordingRepo{ProductRepository: repo}
}
