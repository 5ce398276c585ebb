package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/kafka"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Store", func() {
	var (
		w   *fakeWriter
		s   *kafka.Store
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		w = &fakeWriter{}
		var err error
		s, err = kafka.NewStore(kafka.Config{Writer: w})
		Expect(err).NotTo(HaveOccurred())
	})

	It("publishes a record-added event keyed by record id", func() {
		rec := &record.ChatCompletion{Base: record.Base{ID: "chatcmpl-1"}, ClientName: "openai", Model: "gpt-4o"}
		Expect(s.Add(ctx, rec)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		Expect(string(w.messages[0].Key)).To(Equal("chatcmpl-1"))

		var event map[string]any
		Expect(json.Unmarshal(w.messages[0].Value, &event)).To(Succeed())
		Expect(event).To(HaveKeyWithValue("event_type", kafka.EventTypeRecordAdded))
		Expect(event).To(HaveKeyWithValue("table", "openai_records"))
		Expect(event).To(HaveKeyWithValue("schema_version", BeEquivalentTo(1)))
		Expect(event["record"]).To(HaveKeyWithValue("model", "gpt-4o"))
	})

	It("wraps writer failures", func() {
		w.err = errors.New("broker unavailable")
		err := s.Add(ctx, &record.Docling{Base: record.Base{ID: "d"}})
		Expect(err).To(MatchError(ContainSubstring("broker unavailable")))
	})

	It("closes the writer once", func() {
		Expect(s.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
		Expect(s.Add(ctx, &record.Docling{})).To(MatchError(store.ErrClosed))
	})

	It("requires brokers without an injected writer", func() {
		_, err := kafka.NewStore(kafka.Config{})
		Expect(err).To(HaveOccurred())
	})
})
