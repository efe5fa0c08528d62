// Package master proxies the facet-value lookups. The gateway does not
// interpret the values; it only passes them through to the facet pickers.
package master

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scholarchat/gateway/pkg/utils"
)

// Lookup is the slice of the upstream client these endpoints need.
type Lookup interface {
	Faculties(ctx context.Context) ([]string, error)
	Departments(ctx context.Context) ([]string, error)
}

// Handler serves the master-data endpoints.
type Handler struct {
	lookup Lookup
	log    *zap.Logger
}

// New creates the master-data handler.
func New(lookup Lookup, log *zap.Logger) *Handler {
	return &Handler{lookup: lookup, log: log}
}

// RegisterRoutes wires the master-data endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/master/faculties", h.handleFaculties)
	r.Get("/master/departments", h.handleDepartments)
}

func (h *Handler) handleFaculties(w http.ResponseWriter, r *http.Request) {
	values, err := h.lookup.Faculties(r.Context())
	if err != nil {
		h.log.Warn("faculties lookup failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "failed to fetch faculties")
		return
	}
	utils.RespondJSON(w, http.StatusOK, values)
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	values, err := h.lookup.Departments(r.Context())
	if err != nil {
		h.log.Warn("departments lookup failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "failed to fetch departments")
		return
	}
	utils.RespondJSON(w, http.StatusOK, values)
}
