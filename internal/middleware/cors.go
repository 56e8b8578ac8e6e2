package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// CORS answers preflight requests and sets the cross-origin headers for the
// UI. origins is a comma-separated allow-list; "*" or empty allows any origin.
func CORS(origins string) gin.HandlerFunc {
	permitidos := map[string]bool{}
	cualquiera := strings.TrimSpace(origins) == ""
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			cualquiera = true
		}
		if o != "" {
			permitidos[o] = true
		}
	}

	return func(c *gin.Context) {
		origen := c.GetHeader("Origin")
		switch {
		case cualquiera:
			c.Header("Access-Control-Allow-Origin", "*")
		case permitidos[origen]:
			c.Header("Access-Control-Allow-Origin", origen)
			c.Header("Vary", "Origin")
		case origen != "":
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
