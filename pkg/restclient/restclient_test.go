package restclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/restclient"
)

var _ = Describe("Client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("sends JSON with default headers and decodes the response", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok"))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
			var in map[string]string
			Expect(json.NewDecoder(r.Body).Decode(&in)).To(Succeed())
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
		}))
		defer server.Close()

		c := restclient.New(server.URL)
		c.Header.Set("Authorization", "Bearer tok")

		var out map[string]string
		err := c.Do(ctx, restclient.Request{Method: http.MethodPost, Path: "/x", JSON: map[string]string{"name": "n"}}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveKeyWithValue("echo", "n"))
	})

	It("retries server errors", func() {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		Expect(restclient.New(server.URL).Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/"}, nil)).To(Succeed())
		Expect(calls.Load()).To(BeEquivalentTo(2))
	})

	It("does not retry client errors", func() {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "conflict", http.StatusConflict)
		}))
		defer server.Close()

		err := restclient.New(server.URL).Do(ctx, restclient.Request{Method: http.MethodPost, Path: "/"}, nil)
		Expect(restclient.IsStatus(err, http.StatusConflict)).To(BeTrue())
		Expect(calls.Load()).To(BeEquivalentTo(1))
	})
})
