// Package api exposes product search and product administration over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"storefront/internal/logger"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(handler *Handler, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.Discard()
	}
	r := mux.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log.WithComponent("http")))
	r.Use(corsMiddleware)

	r.HandleFunc("/health", handler.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", handler.HandleSearch).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/catalog", handler.HandleCatalog).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/products", handler.HandleListProducts).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	api.HandleFunc("/products/{id}", handler.HandleGetProduct).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/products", handler.HandleCreateProduct).Methods(http.MethodPost, http.MethodOptions)
	admin.HandleFunc("/products/{id}", handler.HandleUpdateProduct).Methods(http.MethodPut, http.MethodOptions)
	admin.HandleFunc("/products/{id}", handler.HandleDeleteProduct).Methods(http.MethodDelete)

	return r
}
