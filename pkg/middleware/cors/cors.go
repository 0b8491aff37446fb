package cors

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/pkg/middleware/requestid"
)

const allowedHeaders = "Authorization, Content-Type, X-Requested-With, " + requestid.HeaderKey

// Options configures the CORS middleware of a campus node.
type Options struct {
	// AllowedOrigins lists browser origins. Empty allows every origin.
	AllowedOrigins []string
	// PeerURLs are the base URLs of the other campuses. Their origins are
	// accepted even when AllowedOrigins does not list them.
	PeerURLs []string
}

// New returns a CORS middleware honoring the configured origins plus the
// origins of the peer campuses.
func New(opts Options) gin.HandlerFunc {
	allowAll := len(opts.AllowedOrigins) == 0
	originSet := make(map[string]struct{}, len(opts.AllowedOrigins)+len(opts.PeerURLs))
	for _, origin := range opts.AllowedOrigins {
		originSet[normalizeOrigin(origin)] = struct{}{}
	}
	for _, peer := range opts.PeerURLs {
		if origin := normalizeOrigin(peer); origin != "" {
			originSet[origin] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && (allowAll || hasOrigin(originSet, origin)):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Add("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// normalizeOrigin reduces a URL to scheme://host[:port]. Values that do not
// parse as absolute URLs are kept as given, minus a trailing slash.
func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	_, ok := originSet[normalizeOrigin(origin)]
	return ok
}
