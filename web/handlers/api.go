package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/scrypster/visage/internal/config"
	"github.com/scrypster/visage/internal/engine"
	"github.com/scrypster/visage/internal/storage"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	engine *engine.IdentityEngine
	config *config.Config
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(eng *engine.IdentityEngine, cfg *config.Config) *APIHandlers {
	return &APIHandlers{
		engine: eng,
		config: cfg,
	}
}

// Enroll handles POST /api/auth/enroll - register a new identity from a
// face descriptor. The response includes the freshly opened first session
// in the identity's stats.
func (h *APIHandlers) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	identity, err := h.engine.Enroll(r.Context(), req.DisplayName, req.ContactHandle, req.FaceDescriptor)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{
		Identity:   identity,
		Confidence: 1.0,
		Message:    "identity enrolled",
	})
}

// Verify handles POST /api/auth/verify - identify the caller by face
// descriptor. A miss is an unauthorized response, not a server error.
func (h *APIHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	result, err := h.engine.Authenticate(r.Context(), req.FaceDescriptor, req.Emotion)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{
		Identity:   result.Identity,
		Confidence: clampConfidence(result.Confidence),
	})
}

// AuthStatus handles GET /api/auth/status - report whether any identity
// is enrolled yet.
func (h *APIHandlers) AuthStatus(w http.ResponseWriter, r *http.Request) {
	enrolled, err := h.engine.HasIdentities(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check enrollment", err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Enrolled: enrolled})
}

// Logout handles POST /api/auth/logout - close the identity's most recent
// open session. Succeeds even when nothing is open.
func (h *APIHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.IdentityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required", nil)
		return
	}

	if err := h.engine.EndSession(r.Context(), req.IdentityID); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogTelemetry handles POST /api/telemetry - record in-session emotion
// and voice activity for an identity.
func (h *APIHandlers) LogTelemetry(w http.ResponseWriter, r *http.Request) {
	if !h.config.Features.EnableTelemetry {
		respondError(w, http.StatusForbidden, "telemetry is disabled", nil)
		return
	}

	var req TelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.IdentityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required", nil)
		return
	}
	if req.Emotion == "" && req.VoiceCommand == "" {
		respondError(w, http.StatusBadRequest, "emotion or voice_command is required", nil)
		return
	}

	err := h.engine.LogTelemetry(r.Context(), req.IdentityID, req.Emotion, req.Confidence, req.VoiceCommand, req.Context)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetIdentity handles GET /api/identities/{id} - the identity profile
// with its recent mood and session history. The enrolled face vector is
// never included.
func (h *APIHandlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity ID is required", nil)
		return
	}

	profile, err := h.engine.Profile(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// DeleteIdentity handles DELETE /api/identities/{id} - remove an identity
// and all of its moods and sessions.
func (h *APIHandlers) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity ID is required", nil)
		return
	}

	if err := h.engine.DeleteIdentity(r.Context(), id); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePreferences handles PUT /api/identities/{id}/preferences - merge
// recognized preference toggles into the identity's settings.
func (h *APIHandlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity ID is required", nil)
		return
	}

	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Preferences == nil {
		respondError(w, http.StatusBadRequest, "preferences object is required", nil)
		return
	}

	prefs, err := h.engine.ApplyPreferences(r.Context(), id, req.Preferences)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PreferencesResponse{Preferences: *prefs})
}

// GetAnalytics handles GET /api/identities/{id}/analytics - the windowed
// mood and session report. The days query parameter selects the window.
func (h *APIHandlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity ID is required", nil)
		return
	}

	days := parseInt(r.URL.Query().Get("days"), h.config.Engine.ReportWindow)

	report, err := h.engine.Report(r.Context(), id, days)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Helper functions

// respondEngineError maps engine and storage errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoMatch):
		respondError(w, http.StatusUnauthorized, "face not recognized", nil)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "identity not found", nil)
	case errors.Is(err, engine.ErrDuplicateIdentity):
		respondError(w, http.StatusConflict, "face already enrolled", nil)
	case errors.Is(err, storage.ErrDuplicateHandle):
		respondError(w, http.StatusConflict, "contact handle already registered", nil)
	case errors.Is(err, engine.ErrInvalidVectorShape),
		errors.Is(err, engine.ErrInvalidEmotion),
		errors.Is(err, engine.ErrInvalidConfidence),
		errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, engine.ErrMatchTimeout):
		respondError(w, http.StatusGatewayTimeout, "identification timed out", nil)
	case errors.Is(err, storage.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable", nil)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more to write.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
