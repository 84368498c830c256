package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"advisory.org/internal/audit"
	"advisory.org/internal/auth"
)

type tokenRequest struct {
	Identity string `json:"identity"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !auth.SupportsTokens() {
		writeError(w, r, http.StatusNotImplemented, auth.ErrTokensDisabled.Error())
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity := auth.Identity(strings.TrimSpace(req.Identity))
	if identity == "" {
		writeError(w, r, http.StatusBadRequest, "identity is required")
		return
	}
	if identity == auth.Anonymous {
		writeError(w, r, http.StatusBadRequest, "anonymous identity cannot hold a token")
		return
	}

	token, err := auth.GenerateToken(identity, a.tokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrTokensDisabled) {
			writeError(w, r, http.StatusNotImplemented, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"identity":   identity.String(),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		Identity:  identity.String(),
		ExpiresAt: expiresAt,
	})
}
