package record_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/record"
)

var _ = Describe("FromRow", func() {
	It("rebuilds a chat record from text-encoded columns", func() {
		rec, err := record.FromRow("litellm_records", map[string]any{
			"id":                "chatcmpl-9",
			"model":             "gpt-4o",
			"timestamp":         "2025-03-01 12:00:00.5+00:00",
			"messages":          `[{"role":"user","content":"Hi"}]`,
			"assistant_message": "Hello",
			"completion_tokens": int64(2),
			"prompt_tokens":     int64(3),
			"total_tokens":      int64(5),
			"finish_reason":     "stop",
			"tool_calls":        nil,
			"function_call":     nil,
			"tags":              `["eval"]`,
			"properties":        `{"user":"u1"}`,
			"error":             nil,
			"raw_response":      []byte(`{"id":"chatcmpl-9"}`),
			"synced_at":         nil,
		})
		Expect(err).NotTo(HaveOccurred())

		chat, ok := rec.(*record.ChatCompletion)
		Expect(ok).To(BeTrue())
		Expect(chat.TableName()).To(Equal("litellm_records"))
		Expect(chat.RecordID()).To(Equal("chatcmpl-9"))
		Expect(chat.Timestamp).To(Equal(time.Date(2025, 3, 1, 12, 0, 0, 500_000_000, time.UTC)))
		Expect(chat.Messages).To(Equal([]record.Message{{Role: "user", Content: "Hi"}}))
		Expect(chat.TotalTokens).To(Equal(5))
		Expect(chat.Tags).To(Equal([]string{"eval"}))
		Expect(chat.Properties).To(HaveKeyWithValue("user", "u1"))
		Expect(chat.RawResponse).To(MatchJSON(`{"id":"chatcmpl-9"}`))
		Expect(chat.SyncedAt).To(BeNil())
	})

	It("accepts decoded JSON values and time.Time timestamps", func() {
		at := time.Date(2025, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
		rec, err := record.FromRow("openai_records", map[string]any{
			"id":         "x",
			"timestamp":  at,
			"properties": map[string]any{"n": 1},
			"synced_at":  at,
		})
		Expect(err).NotTo(HaveOccurred())

		chat := rec.(*record.ChatCompletion)
		Expect(chat.Timestamp.Equal(at)).To(BeTrue())
		Expect(chat.SyncedAt).NotTo(BeNil())
		Expect(chat.Properties).To(HaveKeyWithValue("n", BeNumerically("==", 1)))
	})

	It("rebuilds a docling record with its image bytes", func() {
		png := []byte{0x89, 'P', 'N', 'G'}
		rec, err := record.FromRow(record.DoclingTable, map[string]any{
			"id":          "d1",
			"label":       "picture",
			"page_no":     int64(2),
			"image":       png,
			"text_length": int64(0),
		})
		Expect(err).NotTo(HaveOccurred())

		doc := rec.(*record.Docling)
		Expect(doc.Label).To(Equal("picture"))
		Expect(doc.PageNo).To(Equal(2))
		Expect(doc.Image).To(Equal(png))
	})

	It("rejects tables no record type owns", func() {
		_, err := record.FromRow("sqlite_sequence", map[string]any{})
		Expect(err).To(MatchError(record.ErrUnknownTable))
	})

	It("rejects unparseable timestamps", func() {
		_, err := record.FromRow("openai_records", map[string]any{"timestamp": "yesterday"})
		Expect(err).To(MatchError(ContainSubstring("unrecognized timestamp")))
	})
})
