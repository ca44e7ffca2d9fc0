package httpapi

import (
	"net/http"
	"time"

	"parishdesk.org/internal/auth"
)

const (
	defaultTokenTTL = time.Hour
	maxTokenTTL     = 24 * time.Hour
)

type tokenRequest struct {
	UserID     string `json:"user_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// handleToken issues a signed bearer token for the given subject. The token
// carries identity only; permissions are resolved per request, so a token
// issued before a role change still reflects the current grants.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl > maxTokenTTL {
		ttl = maxTokenTTL
	}

	token, err := auth.GenerateToken(req.UserID, ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(ttl.Seconds()),
	})
}
