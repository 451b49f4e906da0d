package identity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jimiolaniyan/identity/auth"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether the credential store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires the identity endpoints, probes and metrics behind request
// id, logging, panic recovery and an overall request timeout.
func NewRouter(svc auth.Service, store Pinger, log *slog.Logger, requestTimeout time.Duration) http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodPost, "/register", auth.RegisterAccountHandler(svc))
	router.Handler(http.MethodPost, "/login", auth.LoginHandler(svc))
	router.Handler(http.MethodGet, "/me", auth.RequireAuth(svc, auth.AccountHandler(svc)))
	router.HandlerFunc(http.MethodGet, "/healthz", healthz)
	router.Handler(http.MethodGet, "/readyz", readyz(store, log))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	var h http.Handler = router
	h = WithRequestTimeout(h, requestTimeout)
	h = middleware.Recoverer(h)
	h = WithRequestLogging(h, log)
	return WithRequestID(h)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func readyz(store Pinger, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.WarnContext(r.Context(), "readyz.store.not_ready", "err", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
}
