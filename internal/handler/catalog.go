package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmonster/booster-apply/internal/domain"
)

// CatalogHandler serves the static selection catalogs the wizard renders:
// service tags, supported games, countries, and languages.
type CatalogHandler struct{}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

var catalogCollections = map[string]interface{}{
	"services":  domain.ServiceTags,
	"games":     domain.GameCatalog,
	"countries": domain.Countries,
	"languages": domain.Languages,
}

// Get handles GET /catalog.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, catalogCollections)
}

// GetCollection handles GET /catalog/{name} for a single catalog.
func (h *CatalogHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	collection, ok := catalogCollections[name]
	if !ok {
		RespondError(w, domain.ErrNotFound("catalog", name))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{name: collection})
}
