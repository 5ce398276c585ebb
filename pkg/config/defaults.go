package config

const (
	defaultBackend     = "sqlite"
	defaultSQLitePath  = "store.db"
	defaultProvider    = "openai"
	defaultUpstream    = "https://api.openai.com"
	defaultProxyListen = ":8080"

	defaultDoclingTarget = "http://localhost:5001"

	defaultDatasetsEvery = 5

	defaultKafkaTopic = "observers.records"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Backend:    defaultBackend,
			SQLitePath: defaultSQLitePath,
		},
		Proxy: ProxyConfig{
			Provider: defaultProvider,
			Upstream: defaultUpstream,
			Listen:   defaultProxyListen,
		},
		Docling: DoclingConfig{
			Target: defaultDoclingTarget,
		},
		Datasets: DatasetsConfig{
			Every: defaultDatasetsEvery,
		},
		Kafka: KafkaConfig{
			Topic: defaultKafkaTopic,
		},
	}
}
