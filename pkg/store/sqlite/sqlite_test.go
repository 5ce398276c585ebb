package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/sqldriver"
	"github.com/cfahlgren1/observers/pkg/store/sqlite"
)

func chatRecord(id, answer string) *record.ChatCompletion {
	req := &llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.NewTextMessage("user", "Hi")}}
	resp := &llm.ChatResponse{
		ID:      id,
		Message: llm.NewTextMessage("assistant", answer),
		Usage:   &llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	return record.FromTurn("openai", req, resp, nil, record.Meta{
		Tags:       []string{"test"},
		Properties: map[string]any{"env": "ci"},
	})
}

var _ = Describe("Store", func() {
	var (
		s   *sqlite.Store
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		s, err = sqlite.Connect(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		s.Close()
	})

	It("creates the table lazily and stores records", func() {
		Expect(s.Add(ctx, chatRecord("chatcmpl-1", "Hello"))).To(Succeed())

		tables, err := s.Tables(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(Equal([]string{"openai_records"}))

		rows, err := s.List(ctx, "openai_records", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0]["id"]).To(Equal("chatcmpl-1"))
		Expect(rows[0]["assistant_message"]).To(Equal("Hello"))
		Expect(rows[0]["total_tokens"]).To(BeEquivalentTo(5))
		Expect(rows[0]["tags"]).To(MatchJSON(`["test"]`))
		Expect(rows[0]["properties"]).To(MatchJSON(`{"env":"ci"}`))
		Expect(rows[0]["error"]).To(BeNil())
		Expect(rows[0]["synced_at"]).To(BeNil())
	})

	It("ignores records whose id already exists", func() {
		Expect(s.Add(ctx, chatRecord("dup", "first"))).To(Succeed())
		Expect(s.Add(ctx, chatRecord("dup", "second"))).To(Succeed())

		rows, err := s.List(ctx, "openai_records", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0]["assistant_message"]).To(Equal("first"))
	})

	It("lists newest rows first and honors the limit", func() {
		for _, id := range []string{"a", "b", "c"} {
			Expect(s.Add(ctx, chatRecord(id, id))).To(Succeed())
		}

		rows, err := s.List(ctx, "openai_records", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0]["id"]).To(Equal("c"))
		Expect(rows[1]["id"]).To(Equal("b"))
	})

	It("tracks synced rows", func() {
		Expect(s.Add(ctx, chatRecord("a", "x"))).To(Succeed())
		Expect(s.Add(ctx, chatRecord("b", "y"))).To(Succeed())

		n, err := s.MarkSynced(ctx, "openai_records", []string{"a"}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))

		rows, err := s.Unsynced(ctx, "openai_records", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0]["id"]).To(Equal("b"))
	})

	It("stores error records", func() {
		rec := record.FromTurn("anthropic", &llm.ChatRequest{Model: "claude"}, nil, errors.New("overloaded"), record.Meta{})
		Expect(s.Add(ctx, rec)).To(Succeed())

		rows, err := s.List(ctx, "anthropic_records", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[0]["finish_reason"]).To(Equal("error"))
		Expect(rows[0]["error"]).To(Equal("overloaded"))
	})

	It("stores docling images as blobs", func() {
		rec := &record.Docling{Base: record.Base{ID: "d1"}, Label: "picture", Image: []byte{0x89, 0x50, 0x4e, 0x47}}
		Expect(s.Add(ctx, rec)).To(Succeed())

		rows, err := s.List(ctx, record.DoclingTable, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[0]["image"]).To(Equal([]byte{0x89, 0x50, 0x4e, 0x47}))
	})

	It("rejects invalid table names", func() {
		_, err := s.List(ctx, "x; DROP TABLE y", 0)
		Expect(err).To(MatchError(sqldriver.ErrInvalidTable))
	})

	It("refuses adds after close", func() {
		Expect(s.Close()).To(Succeed())
		Expect(s.Add(ctx, chatRecord("late", "x"))).To(MatchError(store.ErrClosed))
	})
})

var _ = Describe("Connect", func() {
	It("creates the database file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "observers.db")
		s, err := sqlite.Connect(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(s.Path).To(Equal(path))
		Expect(path).To(BeAnExistingFile())
	})
})
