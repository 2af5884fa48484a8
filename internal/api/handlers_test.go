package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/usecase"
)

type fakeSearcher struct {
	lastReq   usecase.SearchRequest
	lastLimit int
	resp      usecase.SearchResponse
	err       error
}

func (s *fakeSearcher) Search(ctx context.Context, req usecase.SearchRequest) (usecase.SearchResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func (s *fakeSearcher) List(ctx context.Context, limit int) ([]domain.SearchResult, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []domain.SearchResult{{ID: 1, Name: "Lamp", ImageURL: "/images/placeholder-product.jpg"}}, nil
}

type fakeProducts struct {
	products map[int64]domain.Product
	err      error
	deleted  []int64
}

func (p *fakeProducts) Get(ctx context.Context, id int64) (domain.Product, error) {
	if prod, ok := p.products[id]; ok {
		return prod, nil
	}
	return domain.Product{}, fmt.Errorf("get product: %w", domain.ErrProductNotFound)
}

func (p *fakeProducts) Create(ctx context.Context, prod domain.Product) (domain.Product, error) {
	prod.ID = 10
	return prod, p.err
}

func (p *fakeProducts) Update(ctx context.Context, prod domain.Product) (domain.Product, error) {
	if _, ok := p.products[prod.ID]; !ok {
		return domain.Product{}, fmt.Errorf("update product: %w", domain.ErrProductNotFound)
	}
	return prod, p.err
}

func (p *fakeProducts) Delete(ctx context.Context, id int64) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

func newTestRouter(s *fakeSearcher, p *fakeProducts) http.Handler {
	if p.products == nil {
		p.products = map[int64]domain.Product{7: {ID: 7, Name: "Lamp", Price: 1000}}
	}
	return NewRouter(NewHandler(s, p, nil), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body %q: %v", rec.Body.String(), err)
	}
	msg, _ := body["error"].(string)
	return msg
}

func TestHandleSearch_EmptyQuery(t *testing.T) {
	s := &fakeSearcher{}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodPost, "/api/search", `{"search": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Search query is required" {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestHandleSearch_OK(t *testing.T) {
	s := &fakeSearcher{resp: usecase.SearchResponse{
		Results:  []domain.SearchResult{{ID: 1, Name: "Blue Desk Lamp", MatchType: domain.MatchExact, Score: 0.5}},
		State:    usecase.StateIndexFailed,
		Degraded: "index_unavailable",
	}}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodPost, "/api/search",
		`{"search": " blue lamp ", "model": "openai", "indexName": "ecommerce-3-large", "namespace": "products-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := usecase.SearchRequest{Query: "blue lamp", Model: "openai", Index: "ecommerce-3-large", Namespace: "products-1"}
	if s.lastReq != want {
		t.Errorf("expected request %+v, got %+v", want, s.lastReq)
	}
	if rec.Header().Get("X-Search-Degraded") != "index_unavailable" {
		t.Errorf("expected degraded header, got %q", rec.Header().Get("X-Search-Degraded"))
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}

	var results []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0]["_matchType"] != "exact" || results[0]["_score"] != 0.5 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandleSearch_RepositoryFailure(t *testing.T) {
	s := &fakeSearcher{err: domain.NewRepositoryFailure("keyword search", errors.New("connection refused"))}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodPost, "/api/search", `{"search": "lamp"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); strings.Contains(msg, "connection refused") {
		t.Errorf("expected internal details to stay out of the response, got %q", msg)
	}
}

func TestHandleSearch_UnknownModel(t *testing.T) {
	s := &fakeSearcher{err: domain.NewInputError("search", domain.ErrUnknownModel)}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodPost, "/api/search", `{"search": "lamp", "model": "nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCatalog_EmptyQueryIsPassedThrough(t *testing.T) {
	s := &fakeSearcher{resp: usecase.SearchResponse{Results: []domain.SearchResult{}, State: usecase.StateDone}}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodPost, "/api/catalog", `{"search": ""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if s.lastReq.Query != "" {
		t.Errorf("expected empty query to reach the orchestrator, got %q", s.lastReq.Query)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty JSON array, got %q", rec.Body.String())
	}
}

func TestHandleListProducts(t *testing.T) {
	s := &fakeSearcher{}
	h := newTestRouter(s, &fakeProducts{})

	rec := do(t, h, http.MethodGet, "/api/products?limit=5", "")
	if rec.Code != http.StatusOK || s.lastLimit != 5 {
		t.Errorf("expected 200 with limit 5, got %d and %d", rec.Code, s.lastLimit)
	}
	if !strings.Contains(rec.Body.String(), `"image_url":"/images/placeholder-product.jpg"`) {
		t.Errorf("expected image_url in body, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/products", `{"limit": 2}`)
	if rec.Code != http.StatusOK || s.lastLimit != 2 {
		t.Errorf("expected body limit to apply, got %d and %d", rec.Code, s.lastLimit)
	}

	rec = do(t, h, http.MethodPost, "/api/products", "")
	if rec.Code != http.StatusOK || s.lastLimit != 0 {
		t.Errorf("expected empty body to list everything, got %d and %d", rec.Code, s.lastLimit)
	}

	rec = do(t, h, http.MethodGet, "/api/products?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestHandleGetProduct(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, &fakeProducts{})

	if rec := do(t, h, http.MethodGet, "/api/products/7", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/products/99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/products/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCreateProduct(t *testing.T) {
	p := &fakeProducts{}
	h := newTestRouter(&fakeSearcher{}, p)

	rec := do(t, h, http.MethodPost, "/api/admin/products", `{"name": "Lamp", "price": "12.50", "categories": ["Lighting"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID != 10 || created.Price != 1250 {
		t.Errorf("unexpected product %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/admin/products", `{"name": "Lamp", "price": "12.345"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an inexact price, got %d", rec.Code)
	}
}

func TestHandleCreateProduct_SyncFailure(t *testing.T) {
	p := &fakeProducts{err: domain.NewSyncError("create product", 10, errors.New("index down"))}
	h := newTestRouter(&fakeSearcher{}, p)

	rec := do(t, h, http.MethodPost, "/api/admin/products", `{"name": "Lamp", "price": 10}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body struct {
		Error   string         `json:"error"`
		Product domain.Product `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Product.ID != 10 || !strings.Contains(body.Error, "index down") {
		t.Errorf("expected stored product and cause, got %+v", body)
	}
}

func TestHandleUpdateProduct(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, &fakeProducts{})

	rec := do(t, h, http.MethodPut, "/api/admin/products/7", `{"name": "Lamp", "price": "11.00"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPut, "/api/admin/products/8", `{"name": "Lamp"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleDeleteProduct(t *testing.T) {
	p := &fakeProducts{}
	h := newTestRouter(&fakeSearcher{}, p)

	rec := do(t, h, http.MethodDelete, "/api/admin/products/7", "")
	if rec.Code != http.StatusNoContent || len(p.deleted) != 1 || p.deleted[0] != 7 {
		t.Errorf("expected 204 and delete of 7, got %d %v", rec.Code, p.deleted)
	}

	p.err = domain.NewSyncError("delete product", 7, errors.New("index down"))
	rec = do(t, h, http.MethodDelete, "/api/admin/products/7", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when the vector delete fails, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/admin/products/0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for id 0, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, &fakeProducts{})
	rec := do(t, h, http.MethodOptions, "/api/search", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers")
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, &fakeProducts{})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
