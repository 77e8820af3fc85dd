package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/api/campaigns", c.CreateCampaign)
	r.Get("/api/campaigns", c.ListCampaigns)
	r.Get("/api/campaigns/{id}", c.GetCampaign)
	r.Put("/api/campaigns/{id}", c.UpdateCampaign)
	r.Delete("/api/campaigns/{id}", c.DeleteCampaign)
	r.Put("/api/campaigns/{id}/active", c.SetActive)

	r.Post("/api/campaigns/{id}/steps", c.AddStep)
	r.Put("/api/campaigns/{id}/steps/order", c.ReorderSteps)
	r.Put("/api/campaigns/{id}/steps/{number}", c.UpdateStep)
	r.Delete("/api/campaigns/{id}/steps/{number}", c.DeleteStep)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	var active *bool
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, r, appErrors.NewValidation("active", "must be true or false"))
			return
		}
		active = &v
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, q.Get("account_id"), active)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignUpdate
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) SetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}
	if body.Active == nil {
		WriteError(w, r, appErrors.NewValidation("active", "is required"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := c.CampaignService.SetActive(r.Context(), id, *body.Active); err != nil {
		WriteError(w, r, err)
		return
	}
	c.GetCampaign(w, r)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ====================== Steps ======================

func stepNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 1 {
		return 0, appErrors.NewValidation("step_number", "must be a positive integer")
	}
	return n, nil
}

// AddStep inserts at step_number when given, otherwise appends.
func (c *CampaignController) AddStep(w http.ResponseWriter, r *http.Request) {
	var body service.StepInput
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	steps, err := c.CampaignService.AddStep(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"data": steps})
}

func (c *CampaignController) UpdateStep(w http.ResponseWriter, r *http.Request) {
	n, err := stepNumber(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var body service.StepPatch
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	steps, err := c.CampaignService.UpdateStep(r.Context(), chi.URLParam(r, "id"), n, body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": steps})
}

func (c *CampaignController) DeleteStep(w http.ResponseWriter, r *http.Request) {
	n, err := stepNumber(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	steps, err := c.CampaignService.DeleteStep(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": steps})
}

// ReorderSteps takes the existing step numbers in their new order.
func (c *CampaignController) ReorderSteps(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Order []int `json:"order"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, err)
		return
	}

	steps, err := c.CampaignService.ReorderSteps(r.Context(), chi.URLParam(r, "id"), body.Order)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": steps})
}
