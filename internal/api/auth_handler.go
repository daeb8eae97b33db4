package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/session"
)

// SourceKindHTTP is the ComponentKind this server registers itself under
// with the Security Core (spec §4.4 step 1's source_kind check) — the
// one HTTP-facing source this module ships, alongside whatever other
// sources (message-bus consumers, gRPC listeners) an operator wires in.
const SourceKindHTTP security.ComponentKind = "http"

// AuthHandler exposes the Session Manager's opening and closing
// protocol over HTTP, the way the teacher's AuthHandler exposes its own
// login/logout over the same verbs. Re-authentication has no handler.
type AuthHandler struct {
	sessions *session.Manager
}

func NewAuthHandler(sessions *session.Manager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Persistent bool   `json:"persistent"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
}

// Login opens a user-based Command session (spec §4.6 open_user_session).
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	id, err := h.sessions.OpenUserSession(r.Context(), session.OpenUserSessionRequest{
		Username:   req.Username,
		Password:   req.Password,
		Kind:       model.SessionCommand,
		Persistent: req.Persistent,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{SessionID: id.String()})
}

type loginDeviceRequest struct {
	DeviceID   string `json:"device_id"`
	Password   string `json:"password"`
	Persistent bool   `json:"persistent"`
}

// LoginDevice opens a device-based Data session (spec §4.6
// open_device_session) — a device pairs its outbound sync stream with
// this, distinct from the Command session its owning user logs into.
func (h *AuthHandler) LoginDevice(w http.ResponseWriter, r *http.Request) {
	var req loginDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		http.Error(w, "invalid device_id", http.StatusBadRequest)
		return
	}

	id, err := h.sessions.OpenDeviceSession(r.Context(), session.OpenDeviceSessionRequest{
		DeviceID:   deviceID,
		Password:   req.Password,
		Kind:       model.SessionData,
		Persistent: req.Persistent,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{SessionID: id.String()})
}

// Logout closes the session named in the URL (spec §4.6's close
// protocol).
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if err := h.sessions.CloseSession(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeAuthError(w http.ResponseWriter, err error) {
	kind, ok := security.KindOf(err)
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case security.UserNotFound, security.DeviceNotFound, security.InvalidPassword:
		status = http.StatusUnauthorized
	case security.UserLocked, security.DeviceLocked:
		status = http.StatusTooManyRequests
	case security.InsufficientUserAccess, security.InstructionNotAllowed:
		status = http.StatusForbidden
	case security.InvalidArgument:
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
