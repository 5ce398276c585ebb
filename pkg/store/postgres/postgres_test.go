package postgres_test

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("OBSERVERS_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("OBSERVERS_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Store", func() {
	var (
		s      *postgres.Store
		ctx    context.Context
		client string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		s, err = postgres.Connect(ctx, dsn, nil)
		Expect(err).NotTo(HaveOccurred())

		// A fresh client name per test gives every test its own table.
		client = "test_" + uuid.NewString()[:8]
	})

	AfterEach(func() {
		if s != nil {
			_, _ = s.DB.ExecContext(ctx, `DROP TABLE IF EXISTS "`+client+`_records"`)
			s.Close()
		}
	})

	It("stores and marks records synced", func() {
		req := &llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.NewTextMessage("user", "Hi")}}
		rec := record.FromTurn(client, req, &llm.ChatResponse{ID: "r1", Message: llm.NewTextMessage("assistant", "Hello")}, nil, record.Meta{})

		Expect(s.Add(ctx, rec)).To(Succeed())
		Expect(s.Add(ctx, rec)).To(Succeed())

		rows, err := s.Unsynced(ctx, rec.TableName(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))

		n, err := s.MarkSynced(ctx, rec.TableName(), []string{"r1"}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))
	})
})
