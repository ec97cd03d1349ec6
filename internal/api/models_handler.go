package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jspohr/tollbook/internal/catalog"
)

// modelsHandler groups admin handlers for the model price catalog.
type modelsHandler struct {
	service *catalog.Service
}

func newModelsHandler(svc *catalog.Service) *modelsHandler {
	return &modelsHandler{service: svc}
}

// UpsertModel handles PUT /api/v1/admin/models (admin).
func (h *modelsHandler) UpsertModel(w http.ResponseWriter, r *http.Request) {
	var input catalog.UpsertModelInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m, err := h.service.Upsert(r.Context(), input)
	if err != nil {
		if isCatalogValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to upsert model")
		return
	}

	auditLog(r, "upsert", "model", m.ID, "model", m.Ref().String())

	writeJSON(w, http.StatusOK, m)
}

// ListModels handles GET /api/v1/admin/models (admin).
func (h *modelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

// GetModel handles GET /api/v1/admin/models/{provider}/{modelID} (admin).
func (h *modelsHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	modelID := chi.URLParam(r, "modelID")

	m, err := h.service.GetByRef(r.Context(), provider, modelID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "model not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get model")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteModel handles DELETE /api/v1/admin/models/{provider}/{modelID} (admin).
func (h *modelsHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	modelID := chi.URLParam(r, "modelID")

	if err := h.service.Delete(r.Context(), provider, modelID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "model not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete model")
		return
	}

	auditLog(r, "delete", "model", provider+"/"+modelID)

	w.WriteHeader(http.StatusNoContent)
}

// isCatalogValidationError checks whether the error is a known validation
// error from the catalog service.
func isCatalogValidationError(err error) bool {
	return errors.Is(err, catalog.ErrProviderRequired) ||
		errors.Is(err, catalog.ErrModelIDRequired) ||
		errors.Is(err, catalog.ErrNegativePrice)
}
