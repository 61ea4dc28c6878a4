package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/realtime-task-client/pkg/response"
)

// AllowPrivateIP reports whether the caller sits on a loopback or private
// (10/8, 172.16/12, 192.168/16) address.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		parsed := net.ParseIP(ipFromCtx(c))
		if parsed == nil {
			return false
		}
		return parsed.IsLoopback() || parsed.IsPrivate()
	}
}

// AllowLoopback reports whether the caller is on the same host.
func AllowLoopback() AllowFunc {
	return func(c *gin.Context) bool {
		parsed := net.ParseIP(ipFromCtx(c))
		return parsed != nil && parsed.IsLoopback()
	}
}

// LocalOnly rejects every request the allow func refuses with 403.
// A nil allow func defaults to AllowLoopback.
func LocalOnly(allow AllowFunc) gin.HandlerFunc {
	if allow == nil {
		allow = AllowLoopback()
	}
	return func(c *gin.Context) {
		if !allow(c) {
			response.Error[any](c, http.StatusForbidden, "forbidden", gin.H{"ip": ipFromCtx(c)})
			return
		}
		c.Next()
	}
}
