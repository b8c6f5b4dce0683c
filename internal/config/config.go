package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	QueueBackendBadger   = "badger"
	QueueBackendPostgres = "postgres"

	RendererRod  = "rod"
	RendererHTTP = "http"
)

var providerKinds = map[string]bool{"ollama": true, "openai": true, "gemini": true}

type Config struct {
	// Queue
	QueueBackend string `envconfig:"QUEUE_BACKEND" default:"badger"`
	QueueDir     string `envconfig:"QUEUE_DIR" default:"data/queue"`

	DBHost        string `envconfig:"DB_HOST" default:"localhost"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"ragdocs"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"ragdocs"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector index
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateAPIKey string `envconfig:"WEAVIATE_API_KEY"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"Documentation"`

	// Embeddings
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION"`
	FallbackProvider   string `envconfig:"FALLBACK_PROVIDER"`
	FallbackModel      string `envconfig:"FALLBACK_MODEL"`
	FallbackDimension  int    `envconfig:"FALLBACK_DIMENSION"`
	OllamaHost         string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`

	// Extraction
	Renderer             string `envconfig:"RENDERER" default:"rod"`
	BrowserURL           string `envconfig:"BROWSER_URL"`
	RenderTimeoutSeconds int    `envconfig:"RENDER_TIMEOUT_SECONDS" default:"30"`
	ChunkMaxTokens       int    `envconfig:"CHUNK_MAX_TOKENS" default:"512"`
	ChunkOverlap         int    `envconfig:"CHUNK_OVERLAP" default:"50"`

	// Worker
	WorkerConcurrency  int    `envconfig:"WORKER_CONCURRENCY" default:"1"`
	ItemTimeoutSeconds int    `envconfig:"ITEM_TIMEOUT_SECONDS" default:"300"`
	NSQDHost           string `envconfig:"NSQD_HOST"`

	// Search
	SearchTopK    int `envconfig:"SEARCH_TOP_K" default:"5"`
	SnippetLength int `envconfig:"SNIPPET_LENGTH" default:"200"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"3030"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.QueueBackend {
	case QueueBackendBadger:
		if c.QueueDir == "" {
			return fmt.Errorf("%w: QUEUE_DIR", ErrMissingRequired)
		}
	case QueueBackendPostgres:
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: QUEUE_BACKEND %q", ErrInvalid, c.QueueBackend)
	}

	if c.CollectionName == "" {
		return fmt.Errorf("%w: COLLECTION_NAME", ErrMissingRequired)
	}

	if !providerKinds[c.EmbeddingProvider] {
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}
	if c.FallbackProvider != "" && !providerKinds[c.FallbackProvider] {
		return fmt.Errorf("%w: FALLBACK_PROVIDER %q", ErrInvalid, c.FallbackProvider)
	}
	if c.usesProvider("openai") && c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
	}
	if c.usesProvider("gemini") && c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
	}

	if c.Renderer != RendererRod && c.Renderer != RendererHTTP {
		return fmt.Errorf("%w: RENDERER %q", ErrInvalid, c.Renderer)
	}
	if c.ChunkMaxTokens <= 0 {
		return fmt.Errorf("%w: CHUNK_MAX_TOKENS must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_MAX_TOKENS)", ErrInvalid)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("%w: WORKER_CONCURRENCY must be at least 1", ErrInvalid)
	}
	if c.SearchTopK < 1 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be at least 1", ErrInvalid)
	}
	return nil
}

func (c *Config) usesProvider(kind string) bool {
	return c.EmbeddingProvider == kind || c.FallbackProvider == kind
}

func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSeconds) * time.Second
}

func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

func (c *Config) BootstrapRetryDelay() time.Duration {
	return time.Duration(c.BootstrapRetryDelaySeconds) * time.Second
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
