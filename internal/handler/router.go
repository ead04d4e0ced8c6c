package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/config"
	"device-hub-server/internal/middleware"
	"device-hub-server/pkg/response"
)

const healthCheckTimeout = 3 * time.Second

type Handlers struct {
	Auth      *AuthHandler
	User      *UserHandler
	Device    *DeviceHandler
	Analytics *AnalyticsHandler
	WebSocket *WebSocketHandler
}

type RouterOptions struct {
	Auth      middleware.Authenticator
	Log       logrus.FieldLogger
	CORS      config.CORSConfig
	RateLimit config.RateLimitConfig
	// Health reports backing store reachability for /health. Nil means
	// always healthy.
	Health func(ctx context.Context) error
}

func NewRouter(h Handlers, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(opts.Log))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware(
		opts.CORS.AllowedOrigins,
		opts.CORS.AllowedMethods,
		opts.CORS.AllowedHeaders,
	))
	if opts.RateLimit.Enabled && opts.RateLimit.RequestsPerMinute > 0 {
		r.Use(middleware.RateLimitMiddleware(opts.RateLimit.RequestsPerMinute, "/health", "/metrics"))
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", h.Auth.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", h.Auth.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(opts.Auth))

	protected.HandleFunc("/users/me", h.User.GetMe).Methods("GET", "OPTIONS")

	protected.HandleFunc("/devices", h.Device.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices", h.Device.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Device.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Device.Update).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Device.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/devices/{id}/heartbeat", h.Device.Heartbeat).Methods("POST", "OPTIONS")

	for _, prefix := range []string{"/devices", "/analytics"} {
		protected.HandleFunc(prefix+"/{id}/logs", h.Analytics.CreateLog).Methods("POST", "OPTIONS")
		protected.HandleFunc(prefix+"/{id}/logs", h.Analytics.ListLogs).Methods("GET", "OPTIONS")
		protected.HandleFunc(prefix+"/{id}/usage", h.Analytics.Usage).Methods("GET", "OPTIONS")
	}

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler(opts.Health)).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		methodNotAllowed(w, allowedMethods(r, req))
	})
	// mux reports a method mismatch as not found when a later route shares
	// the path prefix, so the fallback looks up the registered methods itself.
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if allowed := allowedMethods(r, req); len(allowed) > 0 {
			methodNotAllowed(w, allowed)
			return
		}
		response.NotFound(w, "Route not found")
	})

	return r
}

func methodNotAllowed(w http.ResponseWriter, allowed []string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// allowedMethods lists the methods of every route whose path matches req.
func allowedMethods(router *mux.Router, req *http.Request) []string {
	var allowed []string
	_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		for _, method := range methods {
			if lo.Contains(allowed, method) {
				continue
			}
			candidate := req.Clone(req.Context())
			candidate.Method = method
			if route.Match(candidate, &mux.RouteMatch{}) {
				allowed = append(allowed, method)
			}
		}
		return nil
	})
	return allowed
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "Storage unavailable")
				return
			}
		}
		response.Success(w, response.Fields{"message": "Server is running"})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, response.Fields{
		"message": "Device Hub API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/api/v1/auth/register":          "POST",
			"/api/v1/auth/login":             "POST",
			"/api/v1/devices":                "GET, POST (protected)",
			"/api/v1/devices/{id}":           "GET, PATCH, DELETE (protected)",
			"/api/v1/devices/{id}/heartbeat": "POST (protected)",
			"/api/v1/devices/{id}/logs":      "GET, POST (protected)",
			"/api/v1/devices/{id}/usage":     "GET (protected)",
			"/ws":                            "GET (websocket, ?token=)",
		},
	})
}
