package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

var DefaultRate = limiter.Rate{
	Period: 1 * time.Second,
	Limit:  10,
}

// RateLimit throttles each client IP in memory.
func RateLimit(rate limiter.Rate) gin.HandlerFunc {
	return mgin.NewMiddleware(limiter.New(memory.NewStore(), rate))
}
