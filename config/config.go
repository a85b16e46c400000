package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analysis service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
	Warehouse  WarehouseConfig  `mapstructure:"warehouse"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig describes the language and embedding capability.
type LLMConfig struct {
	Type            string        `mapstructure:"type"` // openai or any openai-compatible endpoint
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model required")
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	return nil
}

// Retrieval backends.
const (
	RetrievalBackendKnowledgeGraph = "knowledge_graph"
	RetrievalBackendDocuments      = "documents"
)

// RetrievalConfig controls how Retrieval tasks are answered.
type RetrievalConfig struct {
	Backend               string `mapstructure:"backend"`
	TopK                  int    `mapstructure:"top_k"`
	StructuredContextTopK int    `mapstructure:"structured_context_top_k"`
	ExpansionLimit        int    `mapstructure:"expansion_limit"`
	// Documents are files or URLs indexed when the documents backend is selected.
	Documents []string `mapstructure:"documents"`
}

// ExtractionConfig controls document chunking for knowledge extraction.
type ExtractionConfig struct {
	ChunkSize  int      `mapstructure:"chunk_size"`
	Delimiters []string `mapstructure:"delimiters"`
}

// KnowledgeConfig controls where the knowledge store is populated from.
type KnowledgeConfig struct {
	SeedFile     string `mapstructure:"seed_file"`
	SnapshotKey  string `mapstructure:"snapshot_key"`
	LoadSnapshot bool   `mapstructure:"load_snapshot"`
	RefreshCron  string `mapstructure:"refresh_cron"`
}

// Warehouse backends.
const (
	WarehouseBackendStatic   = "static"
	WarehouseBackendPostgres = "postgres"
)

// WarehouseConfig selects the structured query executor.
type WarehouseConfig struct {
	Backend string `mapstructure:"backend"`
	MaxRows int    `mapstructure:"max_rows"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port, defaulting the port to 6379.
func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if r.DB < 0 {
		return fmt.Errorf("storage.redis.db cannot be negative")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// Validate checks cross-section constraints.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Extraction.Validate(); err != nil {
		return err
	}
	if err := c.Knowledge.Validate(); err != nil {
		return err
	}
	if err := c.Warehouse.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	if c.Warehouse.Backend == WarehouseBackendPostgres {
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
	}
	if c.Knowledge.LoadSnapshot && !c.Storage.Redis.Enabled() {
		return fmt.Errorf("knowledge.load_snapshot requires storage.redis.host")
	}
	return nil
}

// Normalize applies defaults to every section.
func (c *Config) Normalize() {
	if c.General.DefaultTimeout <= 0 {
		c.General.DefaultTimeout = 2 * time.Minute
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8001"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.LLM.Type == "" {
		c.LLM.Type = "openai"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = "insightgraph"
	}
	c.Retrieval = c.Retrieval.Normalize()
	c.Extraction = c.Extraction.Normalize()
	c.Knowledge = c.Knowledge.Normalize()
	c.Warehouse = c.Warehouse.Normalize()
}

// LoadConfig loads config from file and environment. An empty path searches the usual
// locations; a missing file is tolerated in that case so env-only deployments work.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("general.default_timeout", "2m")
	v.SetDefault("server.address", ":8001")
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.completion_model", "gpt-3.5-turbo")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("retrieval.backend", RetrievalBackendKnowledgeGraph)
	v.SetDefault("retrieval.top_k", DefaultRetrievalTopK)
	v.SetDefault("retrieval.structured_context_top_k", DefaultStructuredContextTopK)
	v.SetDefault("retrieval.expansion_limit", DefaultExpansionLimit)
	v.SetDefault("extraction.chunk_size", DefaultChunkSize)
	v.SetDefault("knowledge.snapshot_key", DefaultSnapshotKey)
	v.SetDefault("warehouse.backend", WarehouseBackendStatic)
	v.SetDefault("warehouse.max_rows", DefaultWarehouseMaxRows)
	v.SetDefault("telemetry.enabled", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("INSIGHTGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"llm.api_key", "server.jwt_secret", "storage.redis.host", "storage.redis.password", "storage.postgres.url", "knowledge.seed_file", "knowledge.refresh_cron"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
