package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentdf/drmpolicy/pkg/media"
)

func (h storeHandler) optionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listOptions)
	r.Post("/", h.createOption)
	r.Get("/{id}", h.getOption)
	r.Delete("/{id}", h.deleteOption)
	return r
}

func (h storeHandler) listOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.store.ListPolicyOptions(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list policy options", err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (h storeHandler) createOption(w http.ResponseWriter, r *http.Request) {
	var option media.PolicyOption
	if !h.decode(w, r, &option) {
		return
	}
	created, err := h.store.CreatePolicyOption(r.Context(), option)
	if err != nil {
		h.writeError(w, r, "could not create policy option", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) getOption(w http.ResponseWriter, r *http.Request) {
	option, err := h.store.GetPolicyOption(r.Context(), param(r, "id"))
	if err != nil {
		h.writeError(w, r, "could not get policy option", err)
		return
	}
	writeJSON(w, http.StatusOK, option)
}

func (h storeHandler) deleteOption(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePolicyOption(r.Context(), param(r, "id")); err != nil {
		h.writeError(w, r, "could not delete policy option", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h storeHandler) policyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listPolicies)
	r.Post("/", h.createPolicy)
	r.Get("/{id}", h.getPolicy)
	r.Delete("/{id}", h.deletePolicy)
	return r
}

func (h storeHandler) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListAuthorizationPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, "could not list authorization policies", err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h storeHandler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var policy media.AuthorizationPolicy
	if !h.decode(w, r, &policy) {
		return
	}
	created, err := h.store.CreateAuthorizationPolicy(r.Context(), policy)
	if err != nil {
		h.writeError(w, r, "could not create authorization policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h storeHandler) getPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.store.GetAuthorizationPolicy(r.Context(), param(r, "id"))
	if err != nil {
		h.writeError(w, r, "could not get authorization policy", err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h storeHandler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAuthorizationPolicy(r.Context(), param(r, "id")); err != nil {
		h.writeError(w, r, "could not delete authorization policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
