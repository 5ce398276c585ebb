package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/ollama/ollama/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/observer/ollama"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store/inmemory"
)

var chunks = []string{
	`{"model":"llama3.2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"The sky"},"done":false}`,
	`{"model":"llama3.2","created_at":"2025-01-01T00:00:01Z","message":{"role":"assistant","content":" is blue."},"done":false}`,
	`{"model":"llama3.2","created_at":"2025-01-01T00:00:02Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","total_duration":5000,"prompt_eval_count":11,"eval_count":6}`,
}

var _ = Describe("Ollama observer", func() {
	var (
		ctx     context.Context
		mem     *inmemory.Store
		client  *api.Client
		missing bool
		options map[string]any
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = inmemory.NewStore()
		missing = false
		options = nil

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/chat" {
				http.NotFound(w, r)
				return
			}
			var body struct {
				Options map[string]any `json:"options"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			options = body.Options

			if missing {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"model \"llama3.2\" not found"}`))
				return
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			for _, c := range chunks {
				fmt.Fprintln(w, c)
			}
		}))
		DeferCleanup(server.Close)

		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())
		client = api.NewClient(u, server.Client())
	})

	request := func() *api.ChatRequest {
		return &api.ChatRequest{
			Model: "llama3.2",
			Messages: []api.Message{
				{Role: "user", Content: "Why is the sky blue?"},
			},
		}
	}

	It("passes chunks through and records the folded response", func() {
		obs, err := ollama.Wrap(client, observer.WithStore(mem))
		Expect(err).NotTo(HaveOccurred())

		var streamed []string
		err = obs.Chat(ctx, request(), func(r api.ChatResponse) error {
			streamed = append(streamed, r.Message.Content)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(streamed).To(Equal([]string{"The sky", " is blue.", ""}))

		recs := mem.Records("ollama_records")
		Expect(recs).To(HaveLen(1))
		rec := recs[0].(*record.ChatCompletion)
		Expect(rec.Model).To(Equal("llama3.2"))
		Expect(rec.Messages).To(Equal([]record.Message{{Role: "user", Content: "Why is the sky blue?"}}))
		Expect(rec.AssistantMessage).To(Equal("The sky is blue."))
		Expect(rec.FinishReason).To(Equal("stop"))
		Expect(rec.PromptTokens).To(Equal(11))
		Expect(rec.CompletionTokens).To(Equal(6))
		Expect(rec.TotalTokens).To(Equal(17))
	})

	It("works without a callback", func() {
		obs, err := ollama.Wrap(client, observer.WithStore(mem))
		Expect(err).NotTo(HaveOccurred())

		Expect(obs.Chat(ctx, request(), nil)).To(Succeed())
		Expect(mem.Records("ollama_records")).To(HaveLen(1))
	})

	It("rejects a nil request without recording", func() {
		obs, err := ollama.Wrap(client, observer.WithStore(mem))
		Expect(err).NotTo(HaveOccurred())

		Expect(obs.Chat(ctx, nil, nil)).To(MatchError(ollama.ErrNilRequest))
		Expect(mem.Records("ollama_records")).To(BeEmpty())
	})

	It("records errors", func() {
		missing = true
		obs, err := ollama.Wrap(client, observer.WithStore(mem))
		Expect(err).NotTo(HaveOccurred())

		err = obs.Chat(ctx, request(), nil)
		Expect(err).To(HaveOccurred())

		rec := mem.Records("ollama_records")[0].(*record.ChatCompletion)
		Expect(rec.FinishReason).To(Equal(record.FinishReasonError))
		Expect(rec.Error).To(ContainSubstring("not found"))
	})

	It("fills options from defaults", func() {
		obs, err := ollama.Wrap(client,
			observer.WithStore(mem),
			observer.WithDefaults(api.ChatRequest{Options: map[string]any{"temperature": 0.1}}),
		)
		Expect(err).NotTo(HaveOccurred())

		req := request()
		req.Options = map[string]any{"num_ctx": 4096}
		Expect(obs.Chat(ctx, req, nil)).To(Succeed())
		Expect(options).To(HaveKeyWithValue("num_ctx", BeNumerically("==", 4096)))
		Expect(options).To(HaveKeyWithValue("temperature", BeNumerically("~", 0.1)))
	})
})
