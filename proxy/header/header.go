// Package header decides which headers cross each leg of the recording
// proxy:
//
//	Client <--> Proxy <--> Upstream LLM Provider
//
// Each leg negotiates its own connection and content encoding.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

// Proxy control headers. They are consumed by the proxy and never reach
// the upstream provider.
const (
	// ClientNameHeader overrides the client name, and so the record table,
	// for one request.
	ClientNameHeader = "X-Observers-Client"

	// TagsHeader adds comma-separated tags to the request's record.
	TagsHeader = "X-Observers-Tags"
)

// hopByHop headers describe a single connection and are never forwarded.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// dropRequest lists the client headers withheld from the upstream. Host is
// set from the upstream URL; Accept-Encoding is left to http.Transport so
// that it negotiates gzip and hands the proxy a decoded body.
var dropRequest = set(append([]string{"Host", "Accept-Encoding", ClientNameHeader, TagsHeader}, hopByHop...))

// dropResponse lists the upstream headers withheld from the client. The
// body the proxy forwards is already decoded, and the compress middleware
// sets its own encoding and length.
var dropResponse = set(append([]string{"Content-Encoding", "Content-Length"}, hopByHop...))

func set(names []string) map[string]bool {
	return lo.SliceToMap(names, func(n string) (string, bool) {
		return http.CanonicalHeaderKey(n), true
	})
}

// Tags splits a TagsHeader value, dropping empty entries.
func Tags(value string) []string {
	return lo.Compact(lo.Map(strings.Split(value, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))
}

// Handler copies headers between the two legs.
type Handler struct{}

// NewHandler creates a Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetUpstreamRequestHeaders copies the client's request headers onto req,
// leaving out connection-level and proxy control headers.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if !dropRequest[k] {
			req.Header.Add(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies the upstream response headers onto the
// client response, leaving out connection-level and encoding headers.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if !dropResponse[http.CanonicalHeaderKey(k)] {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
