package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

type EmailHandler struct {
	EmailService *service.EmailVerificationService
}

type emailRequest struct {
	PendingToken string `json:"pending_token"`
	Email        string `json:"email"`
}

type emailResponse struct {
	Status string `json:"status"`
}

// ServeHTTP attaches an email address to a parked sign-in attempt and sends
// the confirmation link.
func (h *EmailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PendingToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "pending_token is required")
		return
	}
	parsed, err := mail.ParseAddress(req.Email)
	if err != nil || parsed.Address != req.Email {
		httpx.WriteError(w, http.StatusBadRequest, "a valid email address is required")
		return
	}

	if err := h.EmailService.SubmitEmail(ctx, req.PendingToken, req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrPendingNotFound):
			httpx.WriteError(w, http.StatusNotFound, "sign-in attempt not found or expired")
		case errors.Is(err, service.ErrDuplicateEmail):
			httpx.WriteError(w, http.StatusConflict, "email address is already in use")
		default:
			log.Error("failed to send verification link", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to send verification link")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, emailResponse{Status: "link_sent"})
}
