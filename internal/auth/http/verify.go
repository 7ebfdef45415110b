package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

type VerifyHandler struct {
	AuthService *service.AuthService
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

type accountResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Address  string `json:"address"`
	ENSName  string `json:"ens_name,omitempty"`
}

type verifyResponse struct {
	Status       string           `json:"status"`
	Token        string           `json:"token,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	PendingToken string           `json:"pending_token,omitempty"`
	Account      *accountResponse `json:"account,omitempty"`
}

// ServeHTTP verifies a signed sign-in message and either opens a session or
// parks the attempt behind email verification.
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" || req.Signature == "" || req.Address == "" {
		httpx.WriteError(w, http.StatusBadRequest, "message, signature and address are required")
		return
	}

	result, err := h.AuthService.Verify(ctx, req.Message, req.Signature, req.Address, r.Host)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedMessage):
			httpx.WriteError(w, http.StatusBadRequest, "sign-in message is malformed")
		case errors.Is(err, service.ErrDomainMismatch):
			httpx.WriteError(w, http.StatusBadRequest, "sign-in message was issued for a different site")
		case errors.Is(err, service.ErrTimeWindow):
			httpx.WriteError(w, http.StatusBadRequest, "sign-in message is outside its validity window")
		case errors.Is(err, service.ErrNonceInvalid):
			httpx.WriteError(w, http.StatusUnauthorized, "nonce is invalid or already used")
		case errors.Is(err, service.ErrSignatureMismatch):
			httpx.WriteError(w, http.StatusUnauthorized, "signature verification failed")
		case errors.Is(err, service.ErrAccountBlocked):
			httpx.WriteError(w, http.StatusForbidden, "account is blocked")
		case errors.Is(err, service.ErrRegistrationDisabled):
			httpx.WriteError(w, http.StatusForbidden, "registration is disabled")
		default:
			log.Error("sign-in verification failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "sign-in failed")
		}
		return
	}

	switch result.Status {
	case service.StatusPendingEmail:
		httpx.WriteJSON(w, http.StatusAccepted, verifyResponse{
			Status:       "pending_email",
			PendingToken: result.PendingToken,
		})

	default:
		status := "ok"
		if result.Status == service.StatusCreated {
			status = "created"
		}
		httpx.WriteJSON(w, http.StatusOK, verifyResponse{
			Status:    status,
			Token:     result.Token,
			ExpiresAt: &result.ExpiresAt,
			Account: &accountResponse{
				ID:       result.Identity.ID,
				Username: result.Identity.Username,
				Address:  result.Identity.Address,
				ENSName:  result.Identity.ENSName,
			},
		})
	}
}
