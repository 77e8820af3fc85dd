package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/drip-engine/internal/service"
)

type AccountController struct {
	AccountService *service.AccountService
}

func (c *AccountController) Routes(r chi.Router) {
	r.Post("/api/accounts", c.CreateAccount)
	r.Get("/api/accounts", c.ListAccounts)
	r.Get("/api/accounts/{id}", c.GetAccount)
	r.Put("/api/accounts/{id}", c.UpdateAccount)
	r.Delete("/api/accounts/{id}", c.DeleteAccount)
	r.Put("/api/accounts/{id}/status", c.SetStatus)
}

func (c *AccountController) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body service.AccountInput
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := c.AccountService.CreateAccount(r.Context(), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, a)
}

func (c *AccountController) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := c.AccountService.ListAccounts(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (c *AccountController) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := c.AccountService.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (c *AccountController) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var body service.AccountProfile
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := c.AccountService.UpdateProfile(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (c *AccountController) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body service.AccountStatusInput
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := c.AccountService.SetStatus(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (c *AccountController) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := c.AccountService.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
