package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"device-hub-server/internal/metrics"
	"device-hub-server/pkg/response"
)

// RateLimitMiddleware allows requestsPerMinute requests per client IP over a
// sliding one-minute window. Paths listed in exempt bypass the limiter.
func RateLimitMiddleware(requestsPerMinute int, exempt ...string) func(http.Handler) http.Handler {
	limiter := httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRateLimitedTotal.Inc()
			response.TooManyRequests(w, "Too many requests, please try again later.")
		}),
	)

	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
