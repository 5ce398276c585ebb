package argilla_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store/argilla"
)

type fakeArgilla struct {
	mu        sync.Mutex
	calls     []string
	published bool
	records   []map[string]any
	datasets  []map[string]any
	created   int

	// failFields rejects that many field creations with 422.
	failFields int
}

func (f *fakeArgilla) handler() http.Handler {
	mux := http.NewServeMux()
	track := func(r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	}

	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Argilla-Api-Key") != "argilla.apikey" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "owner"})
	})
	mux.HandleFunc("GET /api/v1/me/workspaces", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]string{
			{"id": "ws-1", "name": "default"},
			{"id": "ws-2", "name": "team"},
		}})
	})
	mux.HandleFunc("GET /api/v1/me/datasets", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"items": f.datasets})
	})
	mux.HandleFunc("POST /api/v1/datasets", func(w http.ResponseWriter, r *http.Request) {
		track(r)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		for _, ds := range f.datasets {
			if ds["name"] == body["name"] && ds["workspace_id"] == body["workspace_id"] {
				http.Error(w, "dataset already exists", http.StatusConflict)
				return
			}
		}
		f.created++
		ds := map[string]any{"id": fmt.Sprintf("ds-%d", f.created), "name": body["name"], "status": "draft", "workspace_id": body["workspace_id"]}
		f.datasets = append(f.datasets, ds)
		_ = json.NewEncoder(w).Encode(ds)
	})
	mux.HandleFunc("DELETE /api/v1/datasets/{id}", func(w http.ResponseWriter, r *http.Request) {
		track(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		kept := f.datasets[:0]
		for _, ds := range f.datasets {
			if ds["id"] != r.PathValue("id") {
				kept = append(kept, ds)
			}
		}
		f.datasets = kept
		w.WriteHeader(http.StatusOK)
	})
	for _, sub := range []string{"fields", "questions", "metadata-properties"} {
		mux.HandleFunc("POST /api/v1/datasets/{id}/"+sub, func(w http.ResponseWriter, r *http.Request) {
			track(r)
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub == "fields" && f.failFields > 0 {
				f.failFields--
				http.Error(w, "invalid field", http.StatusUnprocessableEntity)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})
	}
	mux.HandleFunc("PUT /api/v1/datasets/{id}/publish", func(w http.ResponseWriter, r *http.Request) {
		track(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = true
		for _, ds := range f.datasets {
			if ds["id"] == r.PathValue("id") {
				ds["status"] = "ready"
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/v1/datasets/{id}/records/bulk", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Items []map[string]any `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.records = append(f.records, body.Items...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

var _ = Describe("Store", func() {
	var (
		fake   *fakeArgilla
		server *httptest.Server
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeArgilla{}
		server = httptest.NewServer(fake.handler())
	})

	AfterEach(func() {
		server.Close()
	})

	connect := func(c argilla.Config) (*argilla.Store, error) {
		c.APIURL = server.URL
		if c.APIKey == "" {
			c.APIKey = "argilla.apikey"
		}
		return argilla.Connect(ctx, c)
	}

	It("rejects an invalid API key", func() {
		_, err := connect(argilla.Config{APIKey: "wrong"})
		Expect(err).To(MatchError(ContainSubstring("401")))
	})

	It("rejects an unknown workspace", func() {
		_, err := connect(argilla.Config{WorkspaceName: "missing"})
		Expect(err).To(MatchError(ContainSubstring(`workspace "missing" not found`)))
	})

	It("creates and publishes the dataset once, then posts records", func() {
		s, err := connect(argilla.Config{WorkspaceName: "team"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		req := &llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.NewTextMessage("user", "Hi")}}
		for _, id := range []string{"a", "b"} {
			resp := &llm.ChatResponse{ID: id, Message: llm.NewTextMessage("assistant", "Hello"), Usage: &llm.Usage{TotalTokens: 4}}
			Expect(s.Add(ctx, record.FromTurn("openai", req, resp, nil, record.Meta{}))).To(Succeed())
		}

		Expect(fake.published).To(BeTrue())
		// 1 dataset + 6 fields + 3 questions + 6 metadata properties + publish
		Expect(fake.calls).To(HaveLen(17))
		Expect(fake.records).To(HaveLen(2))

		item := fake.records[0]
		Expect(item).To(HaveKeyWithValue("external_id", "a"))
		Expect(item["fields"]).To(HaveKeyWithValue("assistant_message", "Hello"))
		Expect(item["fields"]).To(HaveKey("messages"))
		Expect(item["fields"]).NotTo(HaveKey("tool_calls"))
		Expect(item["metadata"]).To(HaveKeyWithValue("model", "gpt-4o"))
		Expect(item["metadata"]).To(HaveKeyWithValue("total_tokens", BeEquivalentTo(4)))
	})

	It("reuses a ready dataset with the same name", func() {
		fake.datasets = []map[string]any{{"id": "existing", "name": "docling_records", "status": "ready", "workspace_id": "ws-1"}}
		s, err := connect(argilla.Config{})
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Add(ctx, &record.Docling{Base: record.Base{ID: "d1"}, Text: "caption"})).To(Succeed())
		Expect(fake.calls).To(BeEmpty())
		Expect(fake.records).To(HaveLen(1))
	})
})

var _ = Describe("Store dataset setup failures", func() {
	var (
		fake   *fakeArgilla
		server *httptest.Server
		ctx    context.Context
		req    *llm.ChatRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeArgilla{}
		server = httptest.NewServer(fake.handler())
		DeferCleanup(server.Close)
		req = &llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.NewTextMessage("user", "Hi")}}
	})

	chat := func(id string) record.Record {
		resp := &llm.ChatResponse{ID: id, Message: llm.NewTextMessage("assistant", "Hello")}
		return record.FromTurn("openai", req, resp, nil, record.Meta{})
	}

	It("deletes the draft when configuring fails so the next record retries", func() {
		fake.failFields = 1
		s, err := argilla.Connect(ctx, argilla.Config{APIURL: server.URL, APIKey: "argilla.apikey"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		err = s.Add(ctx, chat("a"))
		Expect(err).To(MatchError(ContainSubstring("creating field messages")))
		Expect(fake.calls).To(ContainElement("DELETE /api/v1/datasets/ds-1"))
		Expect(fake.datasets).To(BeEmpty())

		Expect(s.Add(ctx, chat("b"))).To(Succeed())
		Expect(s.Add(ctx, chat("c"))).To(Succeed())
		Expect(fake.published).To(BeTrue())
		Expect(fake.datasets).To(HaveLen(1))
		Expect(fake.datasets[0]).To(HaveKeyWithValue("status", "ready"))
		Expect(fake.records).To(HaveLen(2))
	})

	It("replaces an unpublished dataset left by an earlier run", func() {
		fake.datasets = []map[string]any{{"id": "stale", "name": "openai_records", "status": "draft", "workspace_id": "ws-1"}}
		s, err := argilla.Connect(ctx, argilla.Config{APIURL: server.URL, APIKey: "argilla.apikey"})
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(s.Add(ctx, chat("a"))).To(Succeed())
		Expect(fake.calls[0]).To(Equal("DELETE /api/v1/datasets/stale"))
		Expect(fake.datasets).To(HaveLen(1))
		Expect(fake.datasets[0]).To(HaveKeyWithValue("id", "ds-1"))
		Expect(fake.records).To(HaveLen(1))
	})
})

var _ = Describe("RecordItem", func() {
	It("renders terms metadata as strings", func() {
		item, err := argilla.RecordItem(&record.Docling{Base: record.Base{ID: "d1"}, PageNo: 3, DPI: 72})
		Expect(err).NotTo(HaveOccurred())
		Expect(item["metadata"]).To(HaveKeyWithValue("page_no", "3"))
		Expect(item["metadata"]).To(HaveKeyWithValue("dpi", 72))
	})
})
