package middleware

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// RateLimit allows perMinute requests per client IP and answers the rest
// with a JSON 429. Client IPs come from RemoteAddr, which the router has
// already rewritten for requests arriving through trusted proxies.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute < 1 {
		perMinute = 1
	}
	lmt := tollbooth.NewLimiter(float64(perMinute)/60.0, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 10 * time.Minute,
	})
	lmt.SetBurst(perMinute)
	lmt.SetIPLookups([]string{"RemoteAddr"})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"error":{"code":"RATE_LIMITED","message":"too many requests, please try again later"}}`)

	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
