package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/handlers/userctx"
)

const kindRateLimited = "rate_limited"

// Limit requests per caller. Authenticated callers are keyed by user id, others by remote ip
// Defaults to 10 requests a minute
func RateLimitMiddleware(limit int64, period time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = time.Minute
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lctx, err := instance.Get(r.Context(), rateKey(r))
			if err != nil {
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				render.Error(w, kindRateLimited, "Too many requests, try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if identity, ok := userctx.FromContext(r.Context()); ok {
		return "user:" + identity.UserID.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
