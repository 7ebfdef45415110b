package http

import (
	"net/http"
	"time"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

type NonceHandler struct {
	AuthService *service.AuthService
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ServeHTTP issues a fresh single-use challenge for the wallet to embed in
// its sign-in message. The response must never be cached.
func (h *NonceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nonce, err := h.AuthService.Nonce(ctx)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to issue nonce", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to issue nonce")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, nonceResponse{
		Nonce:     nonce.Value,
		IssuedAt:  nonce.IssuedAt,
		ExpiresAt: nonce.ExpireAt,
	})
}
