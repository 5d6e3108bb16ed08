package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/repository"
	applog "github.com/sangkips/pharmadesk/internal/infrastructure/logger"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the HTTP header for idempotency keys
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from a stored key
	ReplayedHeader = "X-Idempotency-Replayed"
	// IdempotencyKeyTTL is how long keys are valid
	IdempotencyKeyTTL = 24 * time.Hour
)

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Repo repository.IdempotencyRepository
	TTL  time.Duration
}

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a request repeats a key the
// same user already used. Reusing a key for a different request is rejected.
// Requests without a key pass through untouched. Only successful responses
// are stored; a rejected or failed request can be sent again with its key.
func Idempotency(config IdempotencyConfig) gin.HandlerFunc {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = IdempotencyKeyTTL
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		userID := c.GetString("user_id")
		if idempotencyKey == "" || userID == "" {
			c.Next()
			return
		}
		if len(idempotencyKey) > 255 {
			response.BadRequest(c, "Idempotency-Key must be at most 255 characters")
			c.Abort()
			return
		}

		log := applog.FromGin(c)
		hash, err := requestHash(c)
		if err != nil {
			response.BadRequest(c, "Request body could not be read")
			c.Abort()
			return
		}

		existing, err := config.Repo.GetByKey(c.Request.Context(), idempotencyKey, userID)
		if err != nil {
			log.Warn("idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		}

		if existing != nil && !existing.IsExpired() {
			if existing.RequestHash != "" && existing.RequestHash != hash {
				response.ErrorWithCode(c, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request")
				c.Abort()
				return
			}
			c.Header(ReplayedHeader, "true")
			c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
			c.Abort()
			return
		}

		blw := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		ikey := &entity.IdempotencyKey{
			Key:          idempotencyKey,
			UserID:       userID,
			Endpoint:     c.Request.Method + " " + c.FullPath(),
			RequestHash:  hash,
			ResponseCode: status,
			ResponseBody: blw.body.String(),
			ExpiresAt:    time.Now().Add(ttl),
		}
		if err := config.Repo.Create(c.Request.Context(), ikey); err != nil {
			log.Warn("failed to store idempotency key", zap.Error(err))
		}
	}
}

// requestHash fingerprints the method, path and body, restoring the body for
// the handler.
func requestHash(c *gin.Context) (string, error) {
	h := sha256.New()
	io.WriteString(h, c.Request.Method+" "+c.Request.URL.Path+"\n")

	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return "", err
		}
		c.Request.Body.Close()
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
