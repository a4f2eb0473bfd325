package middleware

import (
	"fmt"
	"net/http"

	"github.com/taskwell/authcore/ratelimit"
)

// RateLimit throttles by authenticated identity when one is attached
// ("user:<id>"), else by route path ("path:<route>") for anonymous
// traffic. The accept/reject decision belongs to the injected limiter;
// this gate only chooses the key and shapes the response.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "path:" + r.URL.Path
			if id, ok := IdentityFromContext(r.Context()); ok {
				key = "user:" + id.UserID
			}

			decision, err := limiter.Limit(r.Context(), key)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
				return
			}
			if !decision.Allowed {
				w.Header().Set("Content-Type", "application/json")
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())+1))
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
