// Package config provides application configuration with multi-source
// priority: environment variables over the config file
// (~/.jarvis/config.yaml) over defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/quixotic-maker/jarvis-sub000/internal/chunk"
)

var (
	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrInvalidBackend indicates the vector backend is not supported.
	ErrInvalidBackend = errors.New("invalid vector backend")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgres indicates incomplete PostgreSQL settings.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	// ProviderStatic is the offline deterministic embedder, for local
	// development without any model backend.
	ProviderStatic = "static"
)

// Vector backend identifiers used in Config.VectorBackend.
const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

// DefaultGeminiEmbedderModel outputs 3072 dimensions by default but
// supports truncation to 768 via OutputDimensionality; the pgvector schema
// uses 768.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
type Config struct {
	// Embedding backend
	Provider      string `mapstructure:"provider" json:"provider"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`
	// EmbedRPS rate-limits embedding calls per second. Zero disables the
	// limiter.
	EmbedRPS float64 `mapstructure:"embed_rps" json:"embed_rps"`

	// Chunking defaults for new knowledge bases
	ChunkSize     int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	ChunkStrategy string `mapstructure:"chunk_strategy" json:"chunk_strategy"`

	// Vector storage
	VectorBackend string `mapstructure:"vector_backend" json:"vector_backend"`
	ChromemPath   string `mapstructure:"chromem_path" json:"chromem_path"`

	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".jarvis")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("embed_rps", 0)

	v.SetDefault("chunk_size", 800)
	v.SetDefault("chunk_overlap", 150)
	v.SetDefault("chunk_strategy", string(chunk.StrategyFixed))

	v.SetDefault("vector_backend", BackendChromem)
	v.SetDefault("chromem_path", filepath.Join(configDir, "chromem"))

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "jarvis")
	v.SetDefault("postgres_password", "jarvis_dev_password")
	v.SetDefault("postgres_db_name", "jarvis")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", "localhost:8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds explicit environment overrides. Hardcoded keys
// cannot fail to bind; a panic here is a bug.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "JARVIS_PROVIDER")
	mustBind("embedder_model", "JARVIS_EMBEDDER_MODEL")
	mustBind("ollama_host", "JARVIS_OLLAMA_HOST")
	mustBind("vector_backend", "JARVIS_VECTOR_BACKEND")
	mustBind("chromem_path", "JARVIS_CHROMEM_PATH")
	mustBind("listen_addr", "JARVIS_LISTEN_ADDR")
	mustBind("log_level", "JARVIS_LOG_LEVEL")

	// NOTE: GEMINI_API_KEY is read directly by genkit, not via viper.
	// Validation checks its presence when the gemini provider is selected.
}

// Validate fails fast on out-of-range or inconsistent settings.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama, ProviderStatic:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	switch c.VectorBackend {
	case BackendChromem:
	case BackendPgvector:
		if c.PostgresHost == "" || c.PostgresDBName == "" {
			return fmt.Errorf("%w: host and database name required", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.VectorBackend)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidChunking)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidChunking)
	}
	if _, err := chunk.ParseStrategy(c.ChunkStrategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChunking, err)
	}
	return nil
}

// PostgresDSN returns the key=value DSN for pgx. The password is quoted to
// survive spaces and special characters.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the URL form used by golang-migrate.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}

func quoteDSNValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// parseDatabaseURL lets DATABASE_URL override the individual postgres_*
// settings, the common shape in cloud deployments.
func (c *Config) parseDatabaseURL() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("invalid DATABASE_URL scheme %q", parsed.Scheme)
	}

	c.PostgresHost = parsed.Hostname()
	if port := parsed.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if parsed.User != nil {
		c.PostgresUser = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			c.PostgresPassword = password
		}
	}
	if name := strings.TrimPrefix(parsed.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := parsed.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}
