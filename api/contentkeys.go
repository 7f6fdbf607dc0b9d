package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentdf/drmpolicy/pkg/media"
)

func (h storeHandler) contentKeyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listContentKeys)
	r.Post("/", h.createContentKey)
	r.Get("/{id}", h.getContentKey)
	r.Put("/{id}", h.updateContentKey)
	r.Delete("/{id}", h.deleteContentKey)
	return r
}

func (h storeHandler) listContentKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListContentKeys(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list content keys", err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h storeHandler) createContentKey(w http.ResponseWriter, r *http.Request) {
	var key media.ContentKey
	if !h.decode(w, r, &key) {
		return
	}
	created, err := h.store.CreateContentKey(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "could not create content key", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) getContentKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.store.GetContentKey(r.Context(), param(r, "id"))
	if err != nil {
		h.writeError(w, r, "could not get content key", err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h storeHandler) updateContentKey(w http.ResponseWriter, r *http.Request) {
	var key media.ContentKey
	if !h.decode(w, r, &key) {
		return
	}
	key.ID = param(r, "id")
	updated, err := h.store.UpdateContentKey(r.Context(), key)
	if err != nil {
		h.writeError(w, r, "could not update content key", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h storeHandler) deleteContentKey(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteContentKey(r.Context(), param(r, "id")); err != nil {
		h.writeError(w, r, "could not delete content key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
