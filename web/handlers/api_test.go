package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/visage/internal/config"
	"github.com/scrypster/visage/internal/engine"
	"github.com/scrypster/visage/internal/storage/sqlite"
	"github.com/scrypster/visage/pkg/types"
)

func newTestHandlers(t *testing.T) *APIHandlers {
	t.Helper()

	store, err := sqlite.NewIdentityStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Security.SecurityMode = "development"
	cfg.Engine.ReportWindow = 30
	cfg.Features.EnableTelemetry = true

	return NewAPIHandlers(eng, cfg)
}

func descriptor(delta float64) []float64 {
	v := make([]float64, types.VectorDim)
	for i := range v {
		v[i] = 0.5
	}
	v[0] += delta
	return v
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func enrollTestIdentity(t *testing.T, h *APIHandlers, handle string, delta float64) types.Identity {
	t.Helper()
	w := postJSON(t, h.Enroll, "/api/auth/enroll", EnrollRequest{
		DisplayName:    "Test User",
		ContactHandle:  handle,
		FaceDescriptor: descriptor(delta),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return *resp.Identity
}

func TestEnroll_Success(t *testing.T) {
	h := newTestHandlers(t)

	w := postJSON(t, h.Enroll, "/api/auth/enroll", EnrollRequest{
		DisplayName:    "Alice",
		ContactHandle:  "Alice@Example.com",
		FaceDescriptor: descriptor(0),
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Identity.ID)
	assert.Equal(t, "alice@example.com", resp.Identity.ContactHandle)
	assert.Equal(t, 1, resp.Identity.Stats.TotalSessions,
		"enrollment must open the first session")
}

func TestEnroll_RejectsShortDescriptor(t *testing.T) {
	h := newTestHandlers(t)

	w := postJSON(t, h.Enroll, "/api/auth/enroll", EnrollRequest{
		DisplayName:    "Alice",
		ContactHandle:  "alice@example.com",
		FaceDescriptor: make([]float64, 64),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnroll_DuplicateFaceConflicts(t *testing.T) {
	h := newTestHandlers(t)
	enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Enroll, "/api/auth/enroll", EnrollRequest{
		DisplayName:    "Mallory",
		ContactHandle:  "mallory@example.com",
		FaceDescriptor: descriptor(0.2),
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already enrolled")
}

func TestEnroll_DuplicateHandleConflicts(t *testing.T) {
	h := newTestHandlers(t)
	enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Enroll, "/api/auth/enroll", EnrollRequest{
		DisplayName:    "Other Alice",
		ContactHandle:  "alice@example.com",
		FaceDescriptor: descriptor(0.9),
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerify_Success(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Verify, "/api/auth/verify", VerifyRequest{
		FaceDescriptor: descriptor(0.1),
		Emotion:        "happy",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, enrolled.ID, resp.Identity.ID)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Equal(t, 2, resp.Identity.Stats.TotalSessions)
}

func TestVerify_UnknownFaceIsUnauthorized(t *testing.T) {
	h := newTestHandlers(t)
	enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Verify, "/api/auth/verify", VerifyRequest{
		FaceDescriptor: descriptor(0.9),
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not recognized")
}

func TestVerify_InvalidEmotionIsBadRequest(t *testing.T) {
	h := newTestHandlers(t)
	enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Verify, "/api/auth/verify", VerifyRequest{
		FaceDescriptor: descriptor(0),
		Emotion:        "bored",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthStatus(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/auth/status", nil)
	w := httptest.NewRecorder()
	h.AuthStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Enrolled)

	enrollTestIdentity(t, h, "alice@example.com", 0)

	w = httptest.NewRecorder()
	h.AuthStatus(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enrolled)
}

func TestLogout_ClosesSession(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.Logout, "/api/auth/logout", LogoutRequest{IdentityID: enrolled.ID})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Logging out again with nothing open still succeeds.
	w = postJSON(t, h.Logout, "/api/auth/logout", LogoutRequest{IdentityID: enrolled.ID})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLogout_UnknownIdentity(t *testing.T) {
	h := newTestHandlers(t)

	w := postJSON(t, h.Logout, "/api/auth/logout", LogoutRequest{IdentityID: "idt:missing0"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogTelemetry_RecordsMood(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	conf := 0.8
	w := postJSON(t, h.LogTelemetry, "/api/telemetry", TelemetryRequest{
		IdentityID:   enrolled.ID,
		Emotion:      "surprised",
		Confidence:   &conf,
		VoiceCommand: "lights on",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	report := getAnalytics(t, h, enrolled.ID, "")
	assert.Equal(t, 1, report.TotalMoodsLogged)
	assert.Equal(t, 1, report.EmotionDistribution["surprised"])
}

func TestLogTelemetry_RequiresPayload(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	w := postJSON(t, h.LogTelemetry, "/api/telemetry", TelemetryRequest{IdentityID: enrolled.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogTelemetry_InvalidConfidence(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	conf := 1.5
	w := postJSON(t, h.LogTelemetry, "/api/telemetry", TelemetryRequest{
		IdentityID: enrolled.ID,
		Emotion:    "happy",
		Confidence: &conf,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogTelemetry_DisabledByFeatureFlag(t *testing.T) {
	h := newTestHandlers(t)
	h.config.Features.EnableTelemetry = false

	w := postJSON(t, h.LogTelemetry, "/api/telemetry", TelemetryRequest{
		IdentityID: "idt:aaaa0001",
		Emotion:    "happy",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetIdentity_ProfileOmitsVector(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	req := httptest.NewRequest("GET", "/api/identities/"+enrolled.ID, nil)
	req.SetPathValue("id", enrolled.ID)
	w := httptest.NewRecorder()
	h.GetIdentity(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), enrolled.ID)
	assert.NotContains(t, w.Body.String(), "\"vector\"",
		"profile responses must never expose the enrolled face vector")
}

func TestGetIdentity_NotFound(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/identities/idt:missing0", nil)
	req.SetPathValue("id", "idt:missing0")
	w := httptest.NewRecorder()
	h.GetIdentity(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIdentity(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	req := httptest.NewRequest("DELETE", "/api/identities/"+enrolled.ID, nil)
	req.SetPathValue("id", enrolled.ID)
	w := httptest.NewRecorder()
	h.DeleteIdentity(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Gone afterwards.
	req = httptest.NewRequest("GET", "/api/identities/"+enrolled.ID, nil)
	req.SetPathValue("id", enrolled.ID)
	w = httptest.NewRecorder()
	h.GetIdentity(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdatePreferences_IgnoresUnknownKeys(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	body, err := json.Marshal(PreferencesRequest{Preferences: map[string]bool{
		"voice_enabled": false,
		"dark_mode":     true,
	}})
	require.NoError(t, err)

	req := httptest.NewRequest("PUT", "/api/identities/"+enrolled.ID+"/preferences", bytes.NewReader(body))
	req.SetPathValue("id", enrolled.ID)
	w := httptest.NewRecorder()
	h.UpdatePreferences(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PreferencesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Preferences.VoiceEnabled)
	assert.True(t, resp.Preferences.AutoGreeting)
}

func getAnalytics(t *testing.T, h *APIHandlers, id, query string) types.AnalyticsReport {
	t.Helper()
	req := httptest.NewRequest("GET", fmt.Sprintf("/api/identities/%s/analytics%s", id, query), nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.GetAnalytics(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report types.AnalyticsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	return report
}

func TestGetAnalytics_DefaultWindow(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	report := getAnalytics(t, h, enrolled.ID, "")
	assert.Equal(t, "30 days", report.Timeframe)
	assert.Equal(t, 1, report.SessionStats.TotalSessions)
}

func TestGetAnalytics_CustomWindow(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	report := getAnalytics(t, h, enrolled.ID, "?days=7")
	assert.Equal(t, "7 days", report.Timeframe)
}

func TestGetAnalytics_BadDaysFallsBack(t *testing.T) {
	h := newTestHandlers(t)
	enrolled := enrollTestIdentity(t, h, "alice@example.com", 0)

	report := getAnalytics(t, h, enrolled.ID, "?days=banana")
	assert.Equal(t, "30 days", report.Timeframe)
}
