package proxy

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream LLM provider URL (e.g., "http://localhost:11434")
	UpstreamURL string

	// ProviderType selects the wire format used to parse traffic
	// ("openai", "anthropic" or "ollama").
	ProviderType string

	// ProviderUpstreams overrides the upstream used for requests routed
	// through /providers/{name}/... paths.
	ProviderUpstreams map[string]string

	// ClientName names the record table ("<client>_records"). It defaults
	// to the provider type.
	ClientName string

	// Tags and Properties are stamped on every record.
	Tags       []string
	Properties map[string]any
}
