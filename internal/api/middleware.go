package api

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs every request once it has been handled.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// IPAllowlist rejects requests whose client IP is not listed.
func IPAllowlist(allowed []string) gin.HandlerFunc {
	ips := make([]net.IP, 0, len(allowed))
	for _, a := range allowed {
		if ip := net.ParseIP(a); ip != nil {
			ips = append(ips, ip)
		}
	}

	return func(c *gin.Context) {
		client := net.ParseIP(c.ClientIP())
		for _, ip := range ips {
			if ip.Equal(client) {
				c.Next()
				return
			}
		}
		log.Warn().Str("client_ip", c.ClientIP()).Msg("request rejected by ip allow-list")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden: Access denied"})
	}
}
