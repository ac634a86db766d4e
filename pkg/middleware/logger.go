package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/pkg/logger"
)

// RequestLogger registra cada requisição ao fim do processamento. Para
// streams a duração cobre a conexão inteira.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if userID := c.GetString("user_id"); userID != "" {
			kv = append(kv, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("Requisição", kv...)
		case status >= 400:
			log.Warn("Requisição", kv...)
		default:
			log.Info("Requisição", kv...)
		}
	}
}
