package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentdf/drmpolicy/pkg/media"
)

func (h storeHandler) assetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listAssets)
	r.Post("/", h.createAsset)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getAsset)
		r.Post("/files", h.addAssetFile)
		r.Put("/contentkeys/{key}", h.addAssetContentKey)
		r.Delete("/contentkeys/{key}", h.removeAssetContentKey)
		r.Put("/deliverypolicies/{policy}", h.addAssetDeliveryPolicy)
		r.Delete("/deliverypolicies/{policy}", h.removeAssetDeliveryPolicy)
	})
	return r
}

func (h storeHandler) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func (h storeHandler) createAsset(w http.ResponseWriter, r *http.Request) {
	var asset media.Asset
	if !h.decode(w, r, &asset) {
		return
	}
	created, err := h.store.CreateAsset(r.Context(), asset)
	if err != nil {
		h.writeError(w, r, "could not create asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) getAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.store.GetAsset(r.Context(), param(r, "id"))
	if err != nil {
		h.writeError(w, r, "could not get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h storeHandler) addAssetFile(w http.ResponseWriter, r *http.Request) {
	var file media.AssetFile
	if !h.decode(w, r, &file) {
		return
	}
	if err := h.store.AddAssetFile(r.Context(), param(r, "id"), file); err != nil {
		h.writeError(w, r, "could not add asset file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) addAssetContentKey(w http.ResponseWriter, r *http.Request) {
	if err := h.store.AddAssetContentKey(r.Context(), param(r, "id"), param(r, "key")); err != nil {
		h.writeError(w, r, "could not attach content key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) removeAssetContentKey(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveAssetContentKey(r.Context(), param(r, "id"), param(r, "key")); err != nil {
		h.writeError(w, r, "could not detach content key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) addAssetDeliveryPolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.store.AddAssetDeliveryPolicy(r.Context(), param(r, "id"), param(r, "policy")); err != nil {
		h.writeError(w, r, "could not attach delivery policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) removeAssetDeliveryPolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveAssetDeliveryPolicy(r.Context(), param(r, "id"), param(r, "policy")); err != nil {
		h.writeError(w, r, "could not detach delivery policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) deliveryPolicyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listDeliveryPolicies)
	r.Post("/", h.createDeliveryPolicy)
	r.Delete("/{id}", h.deleteDeliveryPolicy)
	return r
}

func (h storeHandler) listDeliveryPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListAssetDeliveryPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list delivery policies", err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h storeHandler) createDeliveryPolicy(w http.ResponseWriter, r *http.Request) {
	var policy media.AssetDeliveryPolicy
	if !h.decode(w, r, &policy) {
		return
	}
	created, err := h.store.CreateAssetDeliveryPolicy(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, "could not create delivery policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) deleteDeliveryPolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAssetDeliveryPolicy(r.Context(), param(r, "id")); err != nil {
		h.writeError(w, r, "could not delete delivery policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) accessPolicyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listAccessPolicies)
	r.Post("/", h.createAccessPolicy)
	return r
}

func (h storeHandler) listAccessPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListAccessPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list access policies", err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h storeHandler) createAccessPolicy(w http.ResponseWriter, r *http.Request) {
	var policy media.AccessPolicy
	if !h.decode(w, r, &policy) {
		return
	}
	created, err := h.store.CreateAccessPolicy(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, "could not create access policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) locatorRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.createLocator)
	r.Delete("/{id}", h.deleteLocator)
	return r
}

func (h storeHandler) createLocator(w http.ResponseWriter, r *http.Request) {
	var locator media.Locator
	if !h.decode(w, r, &locator) {
		return
	}
	created, err := h.store.CreateLocator(r.Context(), locator)
	if err != nil {
		h.writeError(w, r, "could not create locator", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) deleteLocator(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteLocator(r.Context(), param(r, "id")); err != nil {
		h.writeError(w, r, "could not delete locator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
