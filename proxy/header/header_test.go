package header_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/proxy/header"
)

var _ = Describe("Handler", func() {
	var (
		app *fiber.App
		hh  *header.Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = header.NewHandler()
		DeferCleanup(func() { _ = app.Shutdown() })
	})

	// upstreamHeaders runs a request with in through the proxy leg and
	// returns what would be sent upstream.
	upstreamHeaders := func(in http.Header) http.Header {
		var got http.Header
		app.Post("/v1/chat/completions", func(c *fiber.Ctx) error {
			req, _ := http.NewRequest(http.MethodPost, "http://upstream/v1/chat/completions", nil)
			hh.SetUpstreamRequestHeaders(c, req)
			got = req.Header
			return c.SendStatus(fiber.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		for k, vs := range in {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return got
	}

	// clientHeaders copies upstream response headers onto a client response.
	clientHeaders := func(upstream http.Header) http.Header {
		app.Get("/", func(c *fiber.Ctx) error {
			hh.SetClientResponseHeaders(c, &http.Response{Header: upstream})
			return c.SendString("ok")
		})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return resp.Header
	}

	It("forwards credentials and content headers upstream", func() {
		got := upstreamHeaders(http.Header{
			"Authorization":     {"Bearer sk-test"},
			"X-Api-Key":         {"secret"},
			"Anthropic-Version": {"2023-06-01"},
			"Content-Type":      {"application/json"},
		})
		Expect(got.Get("Authorization")).To(Equal("Bearer sk-test"))
		Expect(got.Get("X-Api-Key")).To(Equal("secret"))
		Expect(got.Get("Anthropic-Version")).To(Equal("2023-06-01"))
		Expect(got.Get("Content-Type")).To(Equal("application/json"))
	})

	DescribeTable("drops request headers the upstream must not see",
		func(name, value string) {
			got := upstreamHeaders(http.Header{name: {value}})
			Expect(got.Get(name)).To(BeEmpty())
		},
		Entry("connection", "Connection", "keep-alive"),
		Entry("accept encoding", "Accept-Encoding", "br"),
		Entry("client override", header.ClientNameHeader, "litellm"),
		Entry("record tags", header.TagsHeader, "eval,prod"),
	)

	It("copies upstream response headers back to the client", func() {
		got := clientHeaders(http.Header{
			"Content-Type":          {"application/json"},
			"X-Request-Id":          {"req_123"},
			"Anthropic-Ratelimit-A": {"1", "2"},
		})
		Expect(got.Get("Content-Type")).To(Equal("application/json"))
		Expect(got.Get("X-Request-Id")).To(Equal("req_123"))
		Expect(got.Get("Anthropic-Ratelimit-A")).To(Equal("1, 2"))
	})

	DescribeTable("drops response headers the proxy recomputes",
		func(name string) {
			got := clientHeaders(http.Header{name: {"gzip"}, "X-Keep": {"1"}})
			Expect(got.Get(name)).NotTo(Equal("gzip"))
			Expect(got.Get("X-Keep")).To(Equal("1"))
		},
		Entry("content encoding", "Content-Encoding"),
		Entry("transfer encoding", "Transfer-Encoding"),
	)
})

var _ = Describe("Tags", func() {
	It("splits and trims comma-separated tags", func() {
		Expect(header.Tags(" eval, ,prod ,")).To(Equal([]string{"eval", "prod"}))
		Expect(header.Tags("")).To(BeEmpty())
	})
})
