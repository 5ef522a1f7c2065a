package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastpos/backend/internal/pricing"
	"fastpos/backend/internal/service"
)

const defaultRequestTimeout = 8 * time.Second

type Options struct {
	Policy         pricing.Policy
	AllowedOrigin  string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	policy         pricing.Policy
	allowedOrigin  string
	requestTimeout time.Duration
	pinLimiter     *attemptLimiter
	logger         *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &API{
		service:        svc,
		auth:           auth,
		policy:         opts.Policy,
		allowedOrigin:  opts.AllowedOrigin,
		requestTimeout: opts.RequestTimeout,
		pinLimiter:     newAttemptLimiter(8, time.Minute),
		logger:         opts.Logger.Named("http"),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	staff := []string{service.RoleCashier, service.RoleWaiter, service.RoleAdmin}
	tills := []string{service.RoleCashier, service.RoleAdmin}

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, staff...))
	mux.HandleFunc("/api/v1/inventory", a.requireAuth(a.handleInventory, tills...))

	mux.HandleFunc("/api/v1/tables", a.requireAuth(a.handleTables, staff...))
	mux.HandleFunc("/api/v1/tables/{id}/assign", a.requireAuth(a.handleTableAssign, staff...))
	mux.HandleFunc("/api/v1/tables/{id}/release", a.requireAuth(a.handleTableRelease, service.RoleAdmin))
	mux.HandleFunc("/api/v1/tables/{id}/emergency-release", a.requireAuth(a.handleEmergencyRelease, service.RoleAdmin))

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, staff...))
	mux.HandleFunc("/api/v1/orders/{id}", a.requireAuth(a.handleOrder, staff...))
	mux.HandleFunc("/api/v1/orders/{id}/items", a.requireAuth(a.handleOrderItems, staff...))
	mux.HandleFunc("/api/v1/orders/{id}/items/{productID}", a.requireAuth(a.handleOrderItem, staff...))
	mux.HandleFunc("/api/v1/orders/{id}/submit", a.requireAuth(a.orderTransition(a.service.Submit), staff...))
	mux.HandleFunc("/api/v1/orders/{id}/ready", a.requireAuth(a.orderTransition(a.service.MarkReady), staff...))
	mux.HandleFunc("/api/v1/orders/{id}/cancel", a.requireAuth(a.orderTransition(a.service.Cancel), tills...))
	mux.HandleFunc("/api/v1/orders/{id}/quote", a.requireAuth(a.handleQuote, tills...))
	mux.HandleFunc("/api/v1/orders/{id}/checkout", a.requireAuth(a.handleCheckout, tills...))

	mux.HandleFunc("/api/v1/sales/{id}/receipt", a.requireAuth(a.handleReceipt, tills...))
	mux.HandleFunc("/api/v1/metrics", a.requireAuth(a.handleMetrics, tills...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.requestTimeout)
		defer cancel()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

// writeServiceError maps a service error onto a status code by its kind.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindValidation:
		status = http.StatusUnprocessableEntity
	case service.KindConflict, service.KindConsistency:
		status = http.StatusConflict
	case service.KindTimeout:
		status = http.StatusServiceUnavailable
	}
	a.writeError(w, status, err)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the detail goes to the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
