package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "keepsake.db"

	defaultAPIListen = ":8090"

	defaultClientAPITarget = "http://localhost:8090"

	defaultLLMProvider = "ollama"
	defaultLLMModel    = "llama3.2"
	defaultLLMTarget   = "http://localhost:11434"

	defaultExtractionWorkers = 2

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "keepsake.fact-lifecycle"

	defaultMemoryPolicy = "hybrid"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Model:    defaultLLMModel,
			Target:   defaultLLMTarget,
		},
		Extraction: ExtractionConfig{
			Enabled: true,
			Workers: defaultExtractionWorkers,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Memory: MemoryConfig{
			DefaultPolicy: defaultMemoryPolicy,
		},
	}
}
