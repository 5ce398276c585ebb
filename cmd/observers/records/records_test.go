package recordscmder_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	recordscmder "github.com/cfahlgren1/observers/cmd/observers/records"
	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store/sqlite"
)

var _ = Describe("NewRecordsCmd", func() {
	var (
		dir    string
		dbPath string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "records.db")
	})

	seed := func() {
		s, err := sqlite.Connect(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		ctx := context.Background()
		req := &llm.ChatRequest{Model: "gpt-4o-mini", Messages: []llm.Message{llm.NewTextMessage("user", "Hi")}}
		ok := record.FromTurn("openai", req, &llm.ChatResponse{
			ID:      "chatcmpl-1",
			Message: llm.NewTextMessage("assistant", "Hello\nthere, how can I help?"),
			Usage:   &llm.Usage{PromptTokens: 3, CompletionTokens: 7, TotalTokens: 10},
		}, nil, record.Meta{})
		failed := record.FromTurn("openai", req, nil, errors.New("upstream status 500"), record.Meta{})
		Expect(s.Add(ctx, ok)).To(Succeed())
		Expect(s.Add(ctx, failed)).To(Succeed())

		_, err = s.MarkSynced(ctx, "openai_records", []string{"chatcmpl-1"}, time.Now())
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Add(ctx, &record.Docling{
			Base:     record.Base{ID: "item-1"},
			Label:    "title",
			Filename: "notes.pdf",
			PageNo:   2,
			Text:     "Meeting notes",
		})).To(Succeed())
	}

	execute := func(args ...string) (string, error) {
		cmd := recordscmder.NewRecordsCmd()
		cmd.Flags().String("config-dir", dir, "")
		cmd.Flags().Bool("debug", false, "")

		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs(append([]string{"--sqlite", dbPath}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	It("reports an empty store", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No records yet."))
	})

	It("lists tables with row and unsynced counts", func() {
		seed()

		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchRegexp(`docling_records\s+1\s+1`))
		Expect(out).To(MatchRegexp(`openai_records\s+2\s+1`))
	})

	It("prints the rows of a chat table on one line each", func() {
		seed()

		out, err := execute("openai_records")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("chatcmpl-1"))
		Expect(out).To(ContainSubstring("Hello there, how can I help?"))
		Expect(out).To(ContainSubstring("10 tokens"))
		Expect(out).To(ContainSubstring("upstream status 500"))
	})

	It("filters to unsynced rows", func() {
		seed()

		out, err := execute("--unsynced", "openai_records")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(ContainSubstring("chatcmpl-1"))
		Expect(out).To(ContainSubstring("upstream status 500"))
	})

	It("prints docling items", func() {
		seed()

		out, err := execute("docling_records")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchRegexp(`item-1\s+page 2\s+title\s+Meeting notes\s+notes.pdf`))
	})

	It("rejects tables that are not record tables", func() {
		seed()

		_, err := execute("sqlite_master")
		Expect(err).To(HaveOccurred())
	})
})
