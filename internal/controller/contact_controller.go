package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/repository"
	"github.com/unclebandit/drip-engine/internal/service"
)

type ContactController struct {
	ContactService *service.ContactService
}

func (c *ContactController) Routes(r chi.Router) {
	r.Post("/api/contacts", c.CreateContact)
	r.Get("/api/contacts", c.ListContacts)
	r.Get("/api/contacts/{id}", c.GetContact)
	r.Put("/api/contacts/{id}", c.UpdateContact)
	r.Delete("/api/contacts/{id}", c.DeleteContact)
	r.Put("/api/contacts/{id}/campaign", c.AssignCampaign)
	r.Post("/api/contacts/{id}/reply", c.MarkReplied)
}

func (c *ContactController) CreateContact(w http.ResponseWriter, r *http.Request) {
	var body service.ContactInput
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	view, err := c.ContactService.CreateContact(r.Context(), body)
	writeContact(w, r, http.StatusCreated, view, err)
}

func (c *ContactController) ListContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ContactFilter{
		AccountID:  q.Get("account_id"),
		CampaignID: q.Get("campaign_id"),
	}
	if raw := q.Get("replied"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, r, appErrors.NewValidation("replied", "must be true or false"))
			return
		}
		filter.Replied = &v
	}

	contacts, err := c.ContactService.ListContacts(r.Context(), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": contacts})
}

func (c *ContactController) GetContact(w http.ResponseWriter, r *http.Request) {
	view, err := c.ContactService.GetContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (c *ContactController) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var body service.ContactProfile
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	view, err := c.ContactService.UpdateProfile(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (c *ContactController) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := c.ContactService.DeleteContact(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignCampaign takes {"campaign_id": "..."}; null unassigns.
func (c *ContactController) AssignCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID *string `json:"campaign_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	view, err := c.ContactService.AssignCampaign(r.Context(), chi.URLParam(r, "id"), body.CampaignID)
	writeContact(w, r, http.StatusOK, view, err)
}

func (c *ContactController) MarkReplied(w http.ResponseWriter, r *http.Request) {
	view, err := c.ContactService.MarkReplied(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}
