package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/usecase"
)

// Searcher runs product searches and plain listings.
type Searcher interface {
	Search(ctx context.Context, req usecase.SearchRequest) (usecase.SearchResponse, error)
	List(ctx context.Context, limit int) ([]domain.SearchResult, error)
}

// ProductWriter reads and writes single products with vector sync.
type ProductWriter interface {
	Get(ctx context.Context, id int64) (domain.Product, error)
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	Update(ctx context.Context, p domain.Product) (domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	search   Searcher
	products ProductWriter
	log      *logger.Logger
}

func NewHandler(search Searcher, products ProductWriter, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		search:   search,
		products: products,
		log:      log.WithComponent("api"),
	}
}

// searchBody is the request of /api/search and /api/catalog.
type searchBody struct {
	Search    string `json:"search"`
	Model     string `json:"model"`
	IndexName string `json:"indexName"`
	Namespace string `json:"namespace"`
	TopK      int    `json:"topK"`
	Limit     int    `json:"limit"`
}

func (b searchBody) request() usecase.SearchRequest {
	return usecase.SearchRequest{
		Query:     strings.TrimSpace(b.Search),
		Model:     b.Model,
		Index:     b.IndexName,
		Namespace: b.Namespace,
		TopK:      b.TopK,
		PageSize:  b.Limit,
	}
}

// HandleSearch handles POST /api/search. An empty query is rejected.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := ReadJSONBody(r, &body); err != nil && err != errEmptyBody {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Search) == "" {
		WriteError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	h.runSearch(w, r, body)
}

// HandleCatalog handles POST /api/catalog. An empty query lists the catalog.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := ReadJSONBody(r, &body); err != nil && err != errEmptyBody {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	h.runSearch(w, r, body)
}

func (h *Handler) runSearch(w http.ResponseWriter, r *http.Request, body searchBody) {
	resp, err := h.search.Search(r.Context(), body.request())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("X-Search-State", string(resp.State))
	if resp.Degraded != "" {
		w.Header().Set("X-Search-Degraded", resp.Degraded)
	}
	WriteJSON(w, http.StatusOK, resp.Results)
}

// HandleListProducts handles GET and POST /api/products. The limit comes from
// the query string or the JSON body.
func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if r.Method == http.MethodPost {
		if err := ReadJSONBody(r, &body); err != nil && err != errEmptyBody {
			WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		body.Limit = n
	}

	results, err := h.search.List(r.Context(), body.Limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

// HandleGetProduct handles GET /api/products/{id}.
func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// HandleCreateProduct handles POST /api/admin/products.
func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := ReadJSONBody(r, &p); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	p.ID = 0

	created, err := h.products.Create(r.Context(), p)
	if err != nil {
		h.writeWriteError(w, r, created, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// HandleUpdateProduct handles PUT /api/admin/products/{id}.
func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var p domain.Product
	if err := ReadJSONBody(r, &p); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	p.ID = id

	updated, err := h.products.Update(r.Context(), p)
	if err != nil {
		h.writeWriteError(w, r, updated, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// HandleDeleteProduct handles DELETE /api/admin/products/{id}.
func (h *Handler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidID.Error())
		return 0, false
	}
	return id, true
}

// writeWriteError reports a sync failure together with the stored product.
func (h *Handler) writeWriteError(w http.ResponseWriter, r *http.Request, p domain.Product, err error) {
	if domain.IsKind(err, domain.KindSync) {
		h.log.Error("vector sync failed", logger.F("request_id", RequestID(r.Context())), logger.Err(err))
		WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":   err.Error(),
			"product": p,
		})
		return
	}
	h.writeDomainError(w, r, err)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		WriteError(w, http.StatusNotFound, "Product not found")
	case domain.IsKind(err, domain.KindInput):
		WriteError(w, http.StatusBadRequest, err.Error())
	case domain.IsKind(err, domain.KindSync):
		h.log.Error("vector sync failed", logger.F("request_id", RequestID(r.Context())), logger.Err(err))
		WriteError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("request failed", logger.F("request_id", RequestID(r.Context())), logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
