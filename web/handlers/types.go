package handlers

import (
	"github.com/scrypster/visage/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EnrollRequest is the request format for POST /api/auth/enroll.
type EnrollRequest struct {
	DisplayName    string    `json:"display_name"`
	ContactHandle  string    `json:"contact_handle"`
	FaceDescriptor []float64 `json:"face_descriptor"`
}

// VerifyRequest is the request format for POST /api/auth/verify.
type VerifyRequest struct {
	FaceDescriptor []float64 `json:"face_descriptor"`
	// Emotion optionally carries the emotion detected at the login camera.
	Emotion string `json:"emotion,omitempty"`
}

// AuthResponse is the response format for successful enroll and verify
// calls. Confidence is clamped to [0,1] for display; the engine's raw
// value is not exposed.
type AuthResponse struct {
	Identity   *types.Identity `json:"identity"`
	Confidence float64         `json:"confidence"`
	Message    string          `json:"message,omitempty"`
}

// StatusResponse is the response format for GET /api/auth/status. The
// kiosk frontend uses it to choose between the enrollment and login flows.
type StatusResponse struct {
	Enrolled bool `json:"enrolled"`
}

// LogoutRequest is the request format for POST /api/auth/logout.
type LogoutRequest struct {
	IdentityID string `json:"identity_id"`
}

// TelemetryRequest is the request format for POST /api/telemetry.
type TelemetryRequest struct {
	IdentityID   string   `json:"identity_id"`
	Emotion      string   `json:"emotion,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	VoiceCommand string   `json:"voice_command,omitempty"`
	Context      string   `json:"context,omitempty"`
}

// PreferencesRequest is the request format for PUT
// /api/identities/{id}/preferences. Only recognized keys are applied;
// unknown keys are ignored rather than rejected.
type PreferencesRequest struct {
	Preferences map[string]bool `json:"preferences"`
}

// PreferencesResponse is the response format for preference updates.
type PreferencesResponse struct {
	Preferences types.Preferences `json:"preferences"`
}

// clampConfidence bounds a raw match confidence to [0,1] for display.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
