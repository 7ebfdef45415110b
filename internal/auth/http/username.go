package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

type UsernameHandler struct {
	AuthService  *service.AuthService
	EmailService *service.EmailVerificationService
}

type usernameRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// ServeHTTP finishes a registration parked on the username step and opens
// the session.
func (h *UsernameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" || req.Username == "" {
		httpx.WriteError(w, http.StatusBadRequest, "token and username are required")
		return
	}

	identity, err := h.EmailService.SubmitUsername(ctx, req.Token, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPendingNotFound):
			httpx.WriteError(w, http.StatusNotFound, "sign-in attempt not found or expired")
		case errors.Is(err, service.ErrUsernameTaken):
			httpx.WriteError(w, http.StatusConflict, "username is already taken")
		default:
			log.Error("failed to set username", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to set username")
		}
		return
	}

	token, expiresAt, err := h.AuthService.Session(identity)
	if err != nil {
		log.Error("failed to mint session after username step", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{
		Status:    "created",
		Token:     token,
		ExpiresAt: &expiresAt,
		Account: &accountResponse{
			ID:       identity.ID,
			Username: identity.Username,
			Address:  identity.Address,
			ENSName:  identity.ENSName,
		},
	})
}
