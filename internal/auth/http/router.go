package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/internal/auth/store"
	"github.com/walletgate/walletgate/pkg/httpx"
	"github.com/walletgate/walletgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	AuthService  *service.AuthService
	EmailService *service.EmailVerificationService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSignIn()
	r.registerEmailVerification()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSignIn() {
	// GET /nonce - lenient rate limit (cheap, but a challenge per attempt)
	r.Mux.Handle("GET /siwe/nonce",
		httpx.Chain(&NonceHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /verify - strict rate limit (signature checks are the brute
	// force surface)
	r.Mux.Handle("POST /siwe/verify",
		httpx.Chain(&VerifyHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /siwe/logout",
		httpx.Chain(&LogoutHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerEmailVerification() {
	r.Mux.Handle("POST /siwe/email",
		httpx.Chain(&EmailHandler{EmailService: r.EmailService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /siwe/email/confirm/{uid}/{timestamp}/{hash}",
		httpx.Chain(&ConfirmHandler{AuthService: r.AuthService, EmailService: r.EmailService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /siwe/username",
		httpx.Chain(&UsernameHandler{AuthService: r.AuthService, EmailService: r.EmailService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
