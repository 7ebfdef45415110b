package http

import (
	"net/http"
	"strings"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/slogx"
)

type LogoutHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP ends a session. Session tokens are stateless, so the server side
// only clears the cookie and logs the event; the client discards its copy.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if token := bearerToken(r); token != "" {
		if claims, err := h.AuthService.Sessions.Verify(token); err == nil {
			slogx.FromContext(ctx).Info("session logged out", "subject", claims.Subject)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}
