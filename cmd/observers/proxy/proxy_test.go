package proxycmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	proxycmder "github.com/cfahlgren1/observers/cmd/observers/proxy"
)

var _ = Describe("NewProxyCmd", func() {
	It("registers flags from the shared registry with config defaults", func() {
		cmd := proxycmder.NewProxyCmd()

		listen := cmd.Flags().Lookup("listen")
		Expect(listen).NotTo(BeNil())
		Expect(listen.Shorthand).To(Equal("l"))
		Expect(listen.DefValue).To(Equal(":8080"))

		provider := cmd.Flags().Lookup("provider")
		Expect(provider).NotTo(BeNil())
		Expect(provider.DefValue).To(Equal("openai"))

		Expect(cmd.Flags().Lookup("sqlite").DefValue).To(Equal("store.db"))
		Expect(cmd.Flags().Lookup("client-name")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("tag")).NotTo(BeNil())
	})

	It("rejects an unknown storage backend before listening", func() {
		dir := GinkgoT().TempDir()
		cmd := proxycmder.NewProxyCmd()
		cmd.Flags().String("config-dir", dir, "")
		cmd.Flags().Bool("debug", false, "")
		cmd.SetArgs([]string{"--backend", "duckdb", "--listen", "127.0.0.1:0"})
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)

		Expect(cmd.Execute()).To(MatchError(ContainSubstring("unknown storage backend")))
	})

	It("writes JSON logs to --log-file", func() {
		dir := GinkgoT().TempDir()
		logFile := filepath.Join(dir, "proxy.log")
		cmd := proxycmder.NewProxyCmd()
		cmd.Flags().String("config-dir", dir, "")
		cmd.Flags().Bool("debug", false, "")
		cmd.SetArgs([]string{"--backend", "duckdb", "--log-file", logFile})
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)

		Expect(cmd.Execute()).To(HaveOccurred())
		_, err := os.Stat(logFile)
		Expect(err).NotTo(HaveOccurred())
	})
})
