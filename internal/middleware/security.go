package middleware

import "github.com/gin-gonic/gin"

// DefaultContentSecurityPolicy blocks every resource; /local only serves JSON.
const DefaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

var localAPIHeaders = [][2]string{
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", DefaultContentSecurityPolicy},
	{"Referrer-Policy", "no-referrer"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

// SecurityHeaders applies to the local API only. Proxied responses keep the origin's headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range localAPIHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}
