package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/config"
	"github.com/smallbiznis/botgate/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/botgate/internal/http/middleware"
	"github.com/smallbiznis/botgate/internal/middleware"
	"github.com/smallbiznis/botgate/internal/signature"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	verifier *signature.Verifier,
	webhookHandler *handler.WebhookHandler,
	oauthHandler *handler.OAuthHandler,
	rateLimiter *middleware.RateLimiter,
	redisClient redis.UniversalClient,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	slack := r.Group("/slack")
	if rateLimiter != nil {
		slack.Use(rateLimiter.Handler())
	}
	slack.Use(httpmiddleware.VerifySignature(verifier, logger))
	{
		slack.POST("/events", webhookHandler.Events)
		slack.POST("/commands", webhookHandler.Commands)
	}

	r.GET("/oauth/callback", oauthHandler.Callback)
	r.POST("/auth/revoke", oauthHandler.Revoke)

	r.GET("/healthz", func(c *gin.Context) {
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
