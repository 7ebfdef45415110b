package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

const sessionCookieName = "walletgate_session"

type ConfirmHandler struct {
	AuthService  *service.AuthService
	EmailService *service.EmailVerificationService
}

// ServeHTTP redeems a mailed confirmation link. This endpoint is opened from
// a mail client, so outcomes are redirects rather than JSON: a completed
// sign-in sets the session cookie and lands on the front page, a registration
// that still needs a username lands on the username form.
func (h *ConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	uid, err := strconv.ParseInt(r.PathValue("uid"), 10, 64)
	if err != nil || uid < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid confirmation link")
		return
	}
	timestamp, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid confirmation link")
		return
	}
	hash := r.PathValue("hash")
	if hash == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid confirmation link")
		return
	}

	outcome, err := h.EmailService.Confirm(ctx, uid, timestamp, hash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLinkInvalid):
			httpx.WriteError(w, http.StatusNotFound, "confirmation link is invalid or already used")
		case errors.Is(err, service.ErrLinkExpired):
			httpx.WriteError(w, http.StatusGone, "confirmation link has expired")
		case errors.Is(err, service.ErrAccountBlocked):
			httpx.WriteError(w, http.StatusForbidden, "account is blocked")
		default:
			log.Error("failed to confirm verification link", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "confirmation failed")
		}
		return
	}

	if outcome.AwaitingUsername {
		http.Redirect(w, r, "/create-username?token="+url.QueryEscape(outcome.UsernameToken),
			http.StatusSeeOther)
		return
	}

	token, expiresAt, err := h.AuthService.Session(outcome.Identity)
	if err != nil {
		log.Error("failed to mint session after confirmation", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "confirmation failed")
		return
	}

	setSessionCookie(w, token, expiresAt)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
