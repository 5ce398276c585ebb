package provider_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/llm/provider"
)

var _ = Describe("New", func() {
	It("returns a parser for every supported provider", func() {
		for _, name := range provider.SupportedProviders() {
			p, err := provider.New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal(name))
		}
	})

	It("rejects unknown providers", func() {
		_, err := provider.New("bedrock")
		Expect(err).To(MatchError(ContainSubstring("unknown provider type")))
	})

	It("only defaults to streaming for ollama", func() {
		ollama, _ := provider.New(provider.Ollama)
		openai, _ := provider.New(provider.OpenAI)
		Expect(ollama.DefaultStreaming()).To(BeTrue())
		Expect(openai.DefaultStreaming()).To(BeFalse())
	})
})
