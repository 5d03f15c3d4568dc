package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/signature"
)

// Header names used by the chat platform's webhook signing scheme.
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
)

const rawBodyKey = "raw_body"

// maxWebhookBody caps how much of a webhook body is read before verification.
const maxWebhookBody = 1 << 20

// VerifySignature reads the request body once and verifies the platform
// signature over those exact bytes. The literal raw bytes are stashed in the
// context for handlers; decoding the body and re-serializing it for
// verification would break on key-order and whitespace differences.
func VerifySignature(verifier *signature.Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}

		timestamp := c.GetHeader(HeaderTimestamp)
		provided := c.GetHeader(HeaderSignature)
		if !verifier.Verify(timestamp, body, provided) {
			logger.Warn("webhook signature rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}

		c.Set(rawBodyKey, body)
		c.Next()
	}
}

// RawBody returns the verified request body bytes stashed by VerifySignature.
func RawBody(c *gin.Context) ([]byte, bool) {
	v, ok := c.Get(rawBodyKey)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}
