package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/drip-engine/internal/controller"
	"github.com/unclebandit/drip-engine/internal/service"
)

// DashboardHandler serves the read-only views: the dashboard, per-contact
// next message and per-campaign stats.
type DashboardHandler struct {
	Dashboard *service.DashboardService
	Contacts  *service.ContactService
	Campaigns *service.CampaignService
}

func NewDashboardHandler(d *service.DashboardService, contacts *service.ContactService, campaigns *service.CampaignService) *DashboardHandler {
	return &DashboardHandler{Dashboard: d, Contacts: contacts, Campaigns: campaigns}
}

func (h *DashboardHandler) Routes(r chi.Router) {
	r.Get("/api/dashboard", h.GetDashboard)
	r.Get("/api/contacts/{id}/next", h.NextMessage)
	r.Get("/api/campaigns/{id}/stats", h.CampaignStats)
}

// GetDashboard optionally narrows to ?account_id=.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Dashboard.Dashboard(r.Context(), r.URL.Query().Get("account_id"))
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, d)
}

func (h *DashboardHandler) NextMessage(w http.ResponseWriter, r *http.Request) {
	status, err := h.Contacts.NextMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, status)
}

func (h *DashboardHandler) CampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Campaigns.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, stats)
}
