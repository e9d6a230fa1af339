package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mailbag/internal/middleware"
	"mailbag/internal/service"
	"mailbag/internal/store"
	"mailbag/internal/util"
)

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListContacts(r.Context())
	if err != nil {
		util.WriteError(w, 500, "internal_error", "failed to list contacts", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, items)
}

func (h *Handlers) AddContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := util.DecodeJSON(r, &req, maxSmallBodyBytes); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	c, err := h.svc.AddContact(r.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrInvalidContact) {
			util.WriteError(w, 400, "invalid_contact", err.Error(), middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", "failed to store contact", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 201, c)
}

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetContact(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.WriteError(w, 404, "not_found", "contact not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", "failed to load contact", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, c)
}

func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := h.svc.DeleteContact(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.WriteError(w, 404, "not_found", "contact not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", "failed to delete contact", middleware.RequestID(r.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
