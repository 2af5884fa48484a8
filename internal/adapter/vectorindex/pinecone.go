package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"storefront/config"
	"storefront/internal/port"
)

// Pinecone is a REST client for the Pinecone control and data planes. Index
// hosts are looked up once per index and cached.
type Pinecone struct {
	apiKey     string
	controller string
	apiVersion string
	cloud      string
	region     string
	metric     string
	client     *http.Client

	mu    sync.RWMutex
	hosts map[string]string
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
}

type indexList struct {
	Indexes []indexDescription `json:"indexes"`
}

type createIndexRequest struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Spec      indexSpec `json:"spec"`
}

type indexSpec struct {
	Serverless serverlessSpec `json:"serverless"`
}

type serverlessSpec struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type updateRequest struct {
	ID          string            `json:"id"`
	Values      []float32         `json:"values,omitempty"`
	SetMetadata map[string]string `json:"setMetadata,omitempty"`
	Namespace   string            `json:"namespace,omitempty"`
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string                 `json:"id"`
		Score    float64                `json:"score"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"matches"`
}

// NewPinecone builds a client from the vector index configuration.
func NewPinecone(cfg config.VectorIndexConfig) (*Pinecone, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Pinecone{
		apiKey:     apiKey,
		controller: strings.TrimSuffix(cfg.ControllerURL, "/"),
		apiVersion: cfg.APIVersion,
		cloud:      cfg.Cloud,
		region:     cfg.Region,
		metric:     cfg.Metric,
		client:     &http.Client{Timeout: timeout},
		hosts:      make(map[string]string),
	}, nil
}

// Namespace returns a handle scoped to one index namespace.
func (p *Pinecone) Namespace(index, namespace string) port.VectorNamespace {
	return &pineconeNamespace{client: p, index: index, namespace: namespace}
}

// EnsureIndex creates a serverless index when none with that name exists.
func (p *Pinecone) EnsureIndex(ctx context.Context, name string, dimension int) error {
	var list indexList
	if err := p.do(ctx, http.MethodGet, p.controller+"/indexes", nil, &list); err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}

	for _, idx := range list.Indexes {
		if idx.Name != name {
			continue
		}
		if idx.Dimension != dimension {
			return fmt.Errorf("index %s has dimension %d, model needs %d", name, idx.Dimension, dimension)
		}
		p.setHost(name, idx.Host)
		return nil
	}

	req := createIndexRequest{
		Name:      name,
		Dimension: dimension,
		Metric:    p.metric,
		Spec: indexSpec{
			Serverless: serverlessSpec{Cloud: p.cloud, Region: p.region},
		},
	}
	var created indexDescription
	if err := p.do(ctx, http.MethodPost, p.controller+"/indexes", req, &created); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	if created.Host != "" {
		p.setHost(name, created.Host)
	}
	return nil
}

func (p *Pinecone) host(ctx context.Context, index string) (string, error) {
	p.mu.RLock()
	h, ok := p.hosts[index]
	p.mu.RUnlock()
	if ok {
		return h, nil
	}

	var desc indexDescription
	if err := p.do(ctx, http.MethodGet, p.controller+"/indexes/"+index, nil, &desc); err != nil {
		return "", fmt.Errorf("describe index %s: %w", index, err)
	}
	if desc.Host == "" {
		return "", fmt.Errorf("index %s has no host yet", index)
	}
	p.setHost(index, desc.Host)
	return p.hostURL(desc.Host), nil
}

func (p *Pinecone) setHost(index, host string) {
	if host == "" {
		return
	}
	p.mu.Lock()
	p.hosts[index] = p.hostURL(host)
	p.mu.Unlock()
}

func (p *Pinecone) hostURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}

// APIError is a non-2xx answer from Pinecone.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone returned status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

func (p *Pinecone) do(ctx context.Context, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if p.apiVersion != "" {
		req.Header.Set("X-Pinecone-API-Version", p.apiVersion)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: preview}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type pineconeNamespace struct {
	client    *Pinecone
	index     string
	namespace string
}

func (n *pineconeNamespace) post(ctx context.Context, path string, in, out interface{}) error {
	host, err := n.client.host(ctx, n.index)
	if err != nil {
		return err
	}
	return n.client.do(ctx, http.MethodPost, host+path, in, out)
}

func (n *pineconeNamespace) Upsert(ctx context.Context, records []port.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, len(records))
	for i, r := range records {
		vectors[i] = pineconeVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata}
	}
	return n.post(ctx, "/vectors/upsert", upsertRequest{Vectors: vectors, Namespace: n.namespace}, nil)
}

// Update sends setMetadata, which Pinecone merges into the stored map. Product
// metadata always carries the same keys, so the merge overwrites all of them.
func (n *pineconeNamespace) Update(ctx context.Context, id string, values []float32, metadata map[string]string) error {
	req := updateRequest{
		ID:          id,
		Values:      values,
		SetMetadata: metadata,
		Namespace:   n.namespace,
	}
	return n.post(ctx, "/vectors/update", req, nil)
}

func (n *pineconeNamespace) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return n.post(ctx, "/vectors/delete", deleteRequest{IDs: ids, Namespace: n.namespace}, nil)
}

func (n *pineconeNamespace) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]port.VectorMatch, error) {
	req := queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: includeMetadata,
		Namespace:       n.namespace,
	}
	var resp queryResponse
	if err := n.post(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}

	matches := make([]port.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		var meta map[string]string
		if len(m.Metadata) > 0 {
			meta = make(map[string]string, len(m.Metadata))
			for k, v := range m.Metadata {
				meta[k] = fmt.Sprint(v)
			}
		}
		matches = append(matches, port.VectorMatch{ID: m.ID, Score: m.Score, Metadata: meta})
	}
	return matches, nil
}
