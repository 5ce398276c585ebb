package worker_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/inmemory"
	"github.com/cfahlgren1/observers/pkg/store/worker"
)

// blockingStore holds every Add until release is closed.
type blockingStore struct {
	release chan struct{}
}

func (b *blockingStore) Add(context.Context, record.Record) error {
	<-b.release
	return nil
}

func (b *blockingStore) Close() error { return nil }

func chat(id string) record.Record {
	return &record.ChatCompletion{Base: record.Base{ID: id}, ClientName: "openai"}
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("persists queued records before Close returns", func() {
		mem := inmemory.NewStore()
		wp, err := worker.NewPool(&worker.Config{Store: mem})
		Expect(err).NotTo(HaveOccurred())

		for i := range 10 {
			Expect(wp.Add(ctx, chat(fmt.Sprintf("r%d", i)))).To(Succeed())
		}
		Expect(wp.Close()).To(Succeed())

		Expect(mem.Records("openai_records")).To(HaveLen(10))
	})

	It("drops records when the queue is full", func() {
		blocked := &blockingStore{release: make(chan struct{})}
		wp, err := worker.NewPool(&worker.Config{Store: blocked, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// One record is held by the worker, one fills the queue.
		Expect(wp.Add(ctx, chat("a"))).To(Succeed())
		Eventually(func() error { return wp.Add(ctx, chat("b")) }).Should(Succeed())
		Eventually(func() error { return wp.Add(ctx, chat("c")) }).Should(MatchError(worker.ErrQueueFull))

		close(blocked.release)
		Expect(wp.Close()).To(Succeed())
	})

	It("rejects records after close", func() {
		wp, err := worker.NewPool(&worker.Config{Store: inmemory.NewStore()})
		Expect(err).NotTo(HaveOccurred())
		Expect(wp.Close()).To(Succeed())
		Expect(wp.Add(ctx, chat("late"))).To(MatchError(store.ErrClosed))
		Expect(wp.Close()).To(Succeed())
	})

	It("requires a store", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})
})
