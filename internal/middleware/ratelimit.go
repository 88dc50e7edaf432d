package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/pulsefeed/pulse/internal/request"
)

const defaultRatelimitRate = "5-S"

// RateLimit returns middleware backed by ulule/limiter over Redis.
// The limit key is the gateway-supplied user ID when present, the client
// IP otherwise, so anonymous probes cannot exhaust a user's budget.
func RateLimit(redisClient *redis.Client, rateStr string) (func(http.Handler) http.Handler, error) {
	if rateStr == "" {
		rateStr = defaultRatelimitRate
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return nil, err
	}

	store, err := redisstore.NewStore(redisClient)
	if err != nil {
		return nil, err
	}

	instance := limiter.New(store, rate)
	keyGetter := func(r *http.Request) string {
		if id := r.Header.Get(UserIDHeader); id != "" {
			return id
		}
		return request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler, nil
}
