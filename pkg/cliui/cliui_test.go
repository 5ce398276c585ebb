package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses one decimal of seconds above a second", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Step", func() {
		It("returns the error of fn and prints the failure mark", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "pushing", func() error { return errors.New("boom") })
			Expect(err).To(MatchError("boom"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark + " pushing"))
		})

		It("prints the success mark", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "done", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(HaveSuffix("\n"))
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark + " done"))
		})
	})

	Describe("Table", func() {
		It("pads every column to its widest cell", func() {
			var buf bytes.Buffer
			cliui.Table(&buf, []string{"TABLE", "N"}, [][]string{
				{"openai_records", "12"},
				{"docling_records", "3"},
			})

			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			Expect(lines).To(HaveLen(3))
			Expect(lines[1]).To(Equal("openai_records   12"))
			Expect(lines[2]).To(Equal("docling_records  3"))
		})
	})
})
