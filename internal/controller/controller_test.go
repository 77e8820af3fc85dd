package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/drip-engine/internal/controller"
	appErrors "github.com/unclebandit/drip-engine/internal/errors"
	"github.com/unclebandit/drip-engine/internal/handler"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/service"
	"github.com/unclebandit/drip-engine/internal/testutil"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	s := testutil.OpenStore(t)
	log := logging.Discard()
	controller.ErrorLog = log
	m := lifecycle.NewMachine(s.Contacts, s.Campaigns, s.Accounts, log)

	accounts := &service.AccountService{AccountRepo: s.Accounts, Log: log}
	campaigns := &service.CampaignService{
		CampaignRepo: s.Campaigns,
		AccountRepo:  s.Accounts,
		ContactRepo:  s.Contacts,
		Messages:     s.Messages,
		Lifecycle:    m,
		MaxStepsCap:  10,
		Log:          log,
	}
	contacts := &service.ContactService{ContactRepo: s.Contacts, AccountRepo: s.Accounts, Lifecycle: m, Log: log}
	dashboard := &service.DashboardService{AccountRepo: s.Accounts, CampaignRepo: s.Campaigns, ContactRepo: s.Contacts}

	return handler.NewRouter(log,
		&controller.AccountController{AccountService: accounts},
		&controller.CampaignController{CampaignService: campaigns},
		&controller.ContactController{ContactService: contacts},
		handler.NewDashboardHandler(dashboard, contacts, campaigns),
	)
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func createAccount(t *testing.T, h http.Handler) string {
	t.Helper()
	w, body := do(t, h, http.MethodPost, "/api/accounts", map[string]any{"phone": "+15550100", "status": "active"})
	require.Equal(t, http.StatusCreated, w.Code, body)
	return body["id"].(string)
}

func createCampaign(t *testing.T, h http.Handler, accountID string, active bool) string {
	t.Helper()
	w, body := do(t, h, http.MethodPost, "/api/campaigns", map[string]any{
		"account_id":       accountID,
		"name":             "Follow up",
		"interval_seconds": 3600,
		"max_steps":        3,
		"active":           active,
		"steps":            []map[string]any{{"message": "Hi {name}"}, {"message": "Still there?"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, body)
	return body["id"].(string)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, controller.StatusFor(appErrors.NewValidation("x", "bad")))
	assert.Equal(t, http.StatusNotFound, controller.StatusFor(appErrors.NewContactNotFound("c1")))
	assert.Equal(t, http.StatusConflict, controller.StatusFor(appErrors.NewConcurrencyConflict("c1", 1)))
	assert.Equal(t, http.StatusConflict, controller.StatusFor(appErrors.NewInvalidTransition("c1", "replied", "enroll")))
	assert.Equal(t, http.StatusAccepted, controller.StatusFor(appErrors.NewEnrollmentPaused("k1", "campaign_inactive")))
	assert.Equal(t, http.StatusInternalServerError, controller.StatusFor(assert.AnError))
}

func TestAccountEndpoints(t *testing.T) {
	h := newServer(t)

	w, _ := do(t, h, http.MethodPost, "/api/accounts", `{"phone":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(t, h, http.MethodPost, "/api/accounts", map[string]any{"phone": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "phone")

	id := createAccount(t, h)

	w, body = do(t, h, http.MethodPut, "/api/accounts/"+id, map[string]any{"name": "Sales", "tag": "eu"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sales", body["name"])

	w, body = do(t, h, http.MethodPut, "/api/accounts/"+id+"/status", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code, body)

	w, body = do(t, h, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = do(t, h, http.MethodDelete, "/api/accounts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, h, http.MethodGet, "/api/accounts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCampaignAndStepEndpoints(t *testing.T) {
	h := newServer(t)
	acc := createAccount(t, h)
	id := createCampaign(t, h, acc, true)
	createCampaign(t, h, acc, false)

	w, body := do(t, h, http.MethodGet, "/api/campaigns?page=1&page_size=1&account_id="+acc, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pagination["total_count"])
	assert.EqualValues(t, 2, pagination["total_pages"])

	w, body = do(t, h, http.MethodGet, "/api/campaigns?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = do(t, h, http.MethodGet, "/api/campaigns?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, h, http.MethodPost, "/api/campaigns/"+id+"/steps", map[string]any{"message": "Last call"})
	require.Equal(t, http.StatusCreated, w.Code, body)
	assert.Len(t, body["data"], 3)

	w, body = do(t, h, http.MethodPost, "/api/campaigns/"+id+"/steps", map[string]any{"message": "One too many"})
	assert.Equal(t, http.StatusBadRequest, w.Code, body)

	w, body = do(t, h, http.MethodPut, "/api/campaigns/"+id+"/steps/order", map[string]any{"order": []int{3, 1, 2}})
	require.Equal(t, http.StatusOK, w.Code, body)
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "Last call", first["message"])
	assert.EqualValues(t, 1, first["step_number"])

	w, body = do(t, h, http.MethodPut, "/api/campaigns/"+id+"/steps/2", map[string]any{"message": "Hello {name}"})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "Hello {name}", body["data"].([]any)[1].(map[string]any)["message"])

	w, _ = do(t, h, http.MethodDelete, "/api/campaigns/"+id+"/steps/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, h, http.MethodDelete, "/api/campaigns/"+id+"/steps/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, body = do(t, h, http.MethodPut, "/api/campaigns/"+id, map[string]any{"name": "Renamed", "interval_seconds": 60, "max_steps": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "max_steps below step count")

	w, body = do(t, h, http.MethodPut, "/api/campaigns/"+id+"/active", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, false, body["active"])

	w, _ = do(t, h, http.MethodPut, "/api/campaigns/"+id+"/active", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/api/campaigns/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, h, http.MethodGet, "/api/campaigns/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContactLifecycleEndpoints(t *testing.T) {
	h := newServer(t)
	acc := createAccount(t, h)
	active := createCampaign(t, h, acc, true)
	inactive := createCampaign(t, h, acc, false)

	w, body := do(t, h, http.MethodPost, "/api/contacts", map[string]any{
		"account_id": acc, "external_user_id": "u-1", "name": "Ada", "campaign_id": active,
	})
	require.Equal(t, http.StatusCreated, w.Code, body)
	id := body["id"].(string)
	next := body["next"].(map[string]any)
	assert.Equal(t, string(lifecycle.StateScheduled), next["state"])
	assert.Equal(t, true, next["due"])
	assert.EqualValues(t, 1, next["step"])

	w, body = do(t, h, http.MethodGet, "/api/contacts/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hi {name}", body["message"])

	w, body = do(t, h, http.MethodPut, "/api/contacts/"+id+"/campaign", map[string]any{"campaign_id": inactive})
	require.Equal(t, http.StatusAccepted, w.Code, body)
	assert.NotEmpty(t, body["warning"])
	data := body["data"].(map[string]any)
	assert.Equal(t, inactive, data["campaign_id"])
	assert.Equal(t, string(lifecycle.StatePaused), data["next"].(map[string]any)["state"])

	w, body = do(t, h, http.MethodPut, "/api/contacts/"+id+"/campaign", map[string]any{"campaign_id": nil})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Nil(t, body["campaign_id"])
	assert.Equal(t, string(lifecycle.StateUnassigned), body["next"].(map[string]any)["state"])

	w, body = do(t, h, http.MethodPut, "/api/contacts/"+id, map[string]any{"name": "Ada L", "tag": "vip"})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "vip", body["tag"])

	for i := 0; i < 2; i++ {
		w, body = do(t, h, http.MethodPost, "/api/contacts/"+id+"/reply", nil)
		require.Equal(t, http.StatusOK, w.Code, body)
		assert.Equal(t, true, body["replied"])
	}

	w, body = do(t, h, http.MethodGet, "/api/contacts?replied=true&account_id="+acc, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = do(t, h, http.MethodGet, "/api/contacts?replied=yes-please", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/api/contacts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, h, http.MethodGet, "/api/contacts/"+id+"/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardAndStats(t *testing.T) {
	h := newServer(t)
	acc := createAccount(t, h)
	campaign := createCampaign(t, h, acc, true)

	for _, u := range []string{"u-1", "u-2"} {
		w, body := do(t, h, http.MethodPost, "/api/contacts", map[string]any{"account_id": acc, "external_user_id": u, "campaign_id": campaign})
		require.Equal(t, http.StatusCreated, w.Code, body)
	}
	w, body := do(t, h, http.MethodPost, "/api/contacts", map[string]any{"account_id": acc, "external_user_id": "u-3"})
	require.Equal(t, http.StatusCreated, w.Code, body)

	w, body = do(t, h, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["contacts"], 3)
	totals := body["totals"].(map[string]any)
	assert.EqualValues(t, 2, totals[string(lifecycle.StateScheduled)])
	assert.EqualValues(t, 1, totals[string(lifecycle.StateUnassigned)])
	campaigns := body["campaigns"].([]any)
	require.Len(t, campaigns, 1)
	assert.Len(t, campaigns[0].(map[string]any)["steps"], 2)

	w, body = do(t, h, http.MethodGet, "/api/campaigns/"+campaign+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.EqualValues(t, 0, body["total_sent"])
	assert.EqualValues(t, 2, body["contacts"].(map[string]any)[string(lifecycle.StateScheduled)])

	w, _ = do(t, h, http.MethodGet, "/api/campaigns/nope/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}
