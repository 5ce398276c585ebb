package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/logger"
)

func decodeLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		Expect(json.Unmarshal([]byte(line), &m)).To(Succeed())
		out = append(out, m)
	}
	return out
}

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type brokenHandler struct{ slog.Handler }

func (brokenHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

var _ = Describe("New", func() {
	It("writes info-level text by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Info("record stored", "table", "openai_records")
		l.Debug("hidden")

		Expect(buf.String()).To(ContainSubstring("record stored"))
		Expect(buf.String()).To(ContainSubstring("table=openai_records"))
		Expect(buf.String()).NotTo(ContainSubstring("hidden"))
	})

	It("emits debug entries when enabled", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("queue drained")

		Expect(buf.String()).To(ContainSubstring("queue drained"))
	})

	It("writes one JSON object per entry", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
		l.Info("pushed", "records", 42)
		l.With("store", "kafka").Warn("retrying")

		lines := decodeLines(&buf)
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HaveKeyWithValue("msg", "pushed"))
		Expect(lines[0]["records"]).To(BeNumerically("==", 42))
		Expect(lines[1]).To(HaveKeyWithValue("store", "kafka"))
	})

	It("adds the caller with WithSource", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true)).Info("here")

		Expect(decodeLines(&buf)[0]).To(HaveKey(slog.SourceKey))
	})

	It("filters debug on the pretty logger unless enabled", func() {
		var quiet, loud bytes.Buffer
		logger.New(logger.WithWriter(&quiet), logger.WithPretty(true)).Debug("store flushed")
		logger.New(logger.WithWriter(&loud), logger.WithPretty(true), logger.WithDebug(true)).Debug("store flushed")

		Expect(quiet.String()).To(BeEmpty())
		Expect(loud.String()).To(ContainSubstring("store flushed"))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		l := logger.Nop()
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		Expect(func() { l.With("k", "v").WithGroup("g").Error("ignored") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	It("sends each entry to every logger that accepts its level", func() {
		var console, file bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&console)),
			logger.New(logger.WithWriter(&file), logger.WithJSON(true), logger.WithDebug(true)),
		)

		multi.Info("proxy listening", "addr", ":8080")
		multi.Debug("parsed request")

		Expect(console.String()).To(ContainSubstring("proxy listening"))
		Expect(console.String()).NotTo(ContainSubstring("parsed request"))

		lines := decodeLines(&file)
		Expect(lines).To(HaveLen(2))
		Expect(lines[1]).To(HaveKeyWithValue("msg", "parsed request"))
	})

	It("carries attributes and groups to every handler", func() {
		var a, b bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&a), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
		)

		multi.With("component", "worker").WithGroup("record").Info("stored", "table", "docling_records")

		for _, buf := range []*bytes.Buffer{&a, &b} {
			line := decodeLines(buf)[0]
			Expect(line).To(HaveKeyWithValue("component", "worker"))
			Expect(line).To(HaveKeyWithValue("record", HaveKeyWithValue("table", "docling_records")))
		}
	})

	It("keeps writing when one handler fails", func() {
		var buf bytes.Buffer
		good := logger.New(logger.WithWriter(&buf))
		bad := slog.New(brokenHandler{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)})

		h := logger.Multi(bad, good).Handler()
		r := slog.NewRecord(testTime, slog.LevelInfo, "still here", 0)

		Expect(h.Handle(context.Background(), r)).To(MatchError("disk full"))
		Expect(buf.String()).To(ContainSubstring("still here"))
	})

	It("skips nil loggers", func() {
		Expect(logger.Multi(nil, logger.Nop()).Handler()).NotTo(BeNil())
	})
})
