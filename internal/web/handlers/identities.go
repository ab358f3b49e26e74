package handlers

import (
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/sirupsen/logrus"
)

// IdentitiesHandler manages the reference identity set.
type IdentitiesHandler struct {
	store *identity.Store
	log   logrus.FieldLogger
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store *identity.Store, log logrus.FieldLogger) *IdentitiesHandler {
	return &IdentitiesHandler{
		store: store,
		log:   log.WithField("component", "identities"),
	}
}

// IdentityResponse describes one reference entry.
type IdentityResponse struct {
	Name         string `json:"name"`
	File         string `json:"file"`
	ContentHash  string `json:"content_hash,omitempty"`
	HasEmbedding bool   `json:"has_embedding"`
}

func toIdentityResponse(e identity.Entry) IdentityResponse {
	return IdentityResponse{
		Name:         e.Name,
		File:         filepath.Base(e.Path),
		ContentHash:  e.ContentHash,
		HasEmbedding: e.HasEmbedding(),
	}
}

// List returns the entries in store order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.store.Entries()
	result := make([]IdentityResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, toIdentityResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": result,
		"count":      len(result),
		"mode":       h.store.Mode(),
	})
}

// Register adds or replaces a reference identity from a multipart upload.
func (h *IdentitiesHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidForm)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	overwrite, err := formBool(r, "overwrite", false)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	image, err := readFormImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.store.Register(r.Context(), name, image, overwrite)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"name":      sanitizeForLog(entry.Name),
		"overwrite": overwrite,
	}).Info("Identity registered")
	respondJSON(w, http.StatusCreated, toIdentityResponse(entry))
}

// Delete removes a reference identity.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when it is set, the parameter is still escaped then.
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid name")
			return
		}
		name = unescaped
	}

	if err := h.store.Delete(r.Context(), name); err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	h.log.WithField("name", sanitizeForLog(name)).Info("Identity deleted")
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"deleted": true,
	})
}

// Reload rereads the reference directory.
func (h *IdentitiesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reload(r.Context()); err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count": h.store.Len(),
	})
}
