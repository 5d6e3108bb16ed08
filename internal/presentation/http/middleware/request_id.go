package middleware

import (
	"github.com/gin-gonic/gin"
	applog "github.com/sangkips/pharmadesk/internal/infrastructure/logger"
	"github.com/sangkips/pharmadesk/pkg/utils"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an ID, reusing the caller's when it is
// well formed. The ID is echoed in the response and stored on the request
// context so it reaches SQL logs and upstream calls.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !utils.IsValidRequestID(requestID) {
			requestID = utils.NewUUID().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := c.Request.Context()
		ctx, _ = applog.WithRequestID(ctx, applog.FromContext(ctx), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
