package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/research-reports/internal/data/db"
	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/platform/vector"
	"github.com/yungbote/research-reports/internal/realtime/bus"
	"github.com/yungbote/research-reports/internal/services"
)

const envPrefix = "REPORTGEN"

type Config struct {
	ServiceName  string        `mapstructure:"service_name"`
	Environment  string        `mapstructure:"environment"`
	Version      string        `mapstructure:"version"`
	LogMode      string        `mapstructure:"log_mode"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	PromptsPath  string        `mapstructure:"prompts_path"`
	AutoMigrate  bool          `mapstructure:"auto_migrate"`
	Metrics      bool          `mapstructure:"metrics_enabled"`

	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Vector     VectorSettings     `mapstructure:"vector"`
	Generation GenerationSettings `mapstructure:"generation"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Otel       OtelSettings       `mapstructure:"otel"`
}

type PostgresSettings struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// VectorSettings selects the search backend. Qdrant reads its own QDRANT_* variables.
type VectorSettings struct {
	Provider          string `mapstructure:"provider"`
	PineconeAPIKey    string `mapstructure:"pinecone_api_key"`
	PineconeBaseURL   string `mapstructure:"pinecone_base_url"`
	PineconeIndexName string `mapstructure:"pinecone_index_name"`
	PineconeIndexHost string `mapstructure:"pinecone_index_host"`
	NamespacePrefix   string `mapstructure:"namespace_prefix"`
}

type GenerationSettings struct {
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	SectionTimeout     time.Duration `mapstructure:"section_timeout"`
	SynthesisTimeout   time.Duration `mapstructure:"synthesis_timeout"`
	AnalysisTimeout    time.Duration `mapstructure:"analysis_timeout"`
	SectionConcurrency int           `mapstructure:"section_concurrency"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	FinalizeTimeout    time.Duration `mapstructure:"finalize_timeout"`
	MaxDocumentChars   int           `mapstructure:"max_document_chars"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type OtelSettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Headers     string  `mapstructure:"headers"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoadConfig reads defaults, then the optional file at path, then the environment.
// Every key is reachable as REPORTGEN_<SECTION>_<KEY>; common provider names are bound too.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "research-reports")
	v.SetDefault("environment", "development")
	v.SetDefault("version", "dev")
	v.SetDefault("log_mode", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("drain_timeout", 30*time.Second)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("prompts_path", "")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("metrics_enabled", true)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.name", "reports")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("vector.provider", vector.ProviderQdrant)
	v.SetDefault("vector.pinecone_api_key", "")
	v.SetDefault("vector.pinecone_base_url", "")
	v.SetDefault("vector.pinecone_index_name", "")
	v.SetDefault("vector.pinecone_index_host", "")
	v.SetDefault("vector.namespace_prefix", "")

	v.SetDefault("generation.call_timeout", 30*time.Second)
	v.SetDefault("generation.section_timeout", 0)
	v.SetDefault("generation.synthesis_timeout", 180*time.Second)
	v.SetDefault("generation.analysis_timeout", 0)
	v.SetDefault("generation.section_concurrency", 4)
	v.SetDefault("generation.stale_after", 30*time.Minute)
	v.SetDefault("generation.finalize_timeout", 15*time.Second)
	v.SetDefault("generation.max_document_chars", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "report-events")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.headers", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Unprefixed names the deployment already sets for other services.
var envAliases = map[string][]string{
	"log_mode":                   {"REPORTGEN_LOG_MODE", "LOG_MODE"},
	"http_addr":                  {"REPORTGEN_HTTP_ADDR", "HTTP_ADDR"},
	"metrics_enabled":            {"REPORTGEN_METRICS_ENABLED", "METRICS_ENABLED"},
	"postgres.dsn":               {"REPORTGEN_POSTGRES_DSN", "DATABASE_URL"},
	"postgres.host":              {"REPORTGEN_POSTGRES_HOST", "POSTGRES_HOST"},
	"postgres.port":              {"REPORTGEN_POSTGRES_PORT", "POSTGRES_PORT"},
	"postgres.user":              {"REPORTGEN_POSTGRES_USER", "POSTGRES_USER"},
	"postgres.password":          {"REPORTGEN_POSTGRES_PASSWORD", "POSTGRES_PASSWORD"},
	"postgres.name":              {"REPORTGEN_POSTGRES_NAME", "POSTGRES_NAME"},
	"vector.provider":            {"REPORTGEN_VECTOR_PROVIDER", "VECTOR_PROVIDER"},
	"vector.pinecone_api_key":    {"REPORTGEN_VECTOR_PINECONE_API_KEY", "PINECONE_API_KEY"},
	"vector.pinecone_base_url":   {"REPORTGEN_VECTOR_PINECONE_BASE_URL", "PINECONE_BASE_URL"},
	"vector.pinecone_index_name": {"REPORTGEN_VECTOR_PINECONE_INDEX_NAME", "PINECONE_INDEX_NAME"},
	"vector.pinecone_index_host": {"REPORTGEN_VECTOR_PINECONE_INDEX_HOST", "PINECONE_INDEX_HOST"},
	"redis.addr":                 {"REPORTGEN_REDIS_ADDR", "REDIS_ADDR"},
	"redis.password":             {"REPORTGEN_REDIS_PASSWORD", "REDIS_PASSWORD"},
	"otel.enabled":               {"REPORTGEN_OTEL_ENABLED", "OTEL_ENABLED"},
	"otel.endpoint":              {"REPORTGEN_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
	"otel.headers":               {"REPORTGEN_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS"},
}

func (c *Config) normalize() {
	c.Vector.Provider = strings.ToLower(strings.TrimSpace(c.Vector.Provider))
	if c.Generation.SectionTimeout <= 0 {
		c.Generation.SectionTimeout = c.Generation.CallTimeout
	}
	if c.Generation.AnalysisTimeout <= 0 {
		c.Generation.AnalysisTimeout = c.Generation.CallTimeout
	}
	origins := make([]string, 0, len(c.CORSOrigins))
	for _, o := range c.CORSOrigins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	c.CORSOrigins = origins
}

func (c Config) Validate() error {
	switch c.Vector.Provider {
	case vector.ProviderQdrant, vector.ProviderPinecone:
	default:
		return fmt.Errorf("unsupported vector provider %q", c.Vector.Provider)
	}
	if c.Generation.CallTimeout <= 0 {
		return fmt.Errorf("generation.call_timeout must be positive")
	}
	if c.Generation.SynthesisTimeout <= 0 {
		return fmt.Errorf("generation.synthesis_timeout must be positive")
	}
	if c.Generation.SectionConcurrency <= 0 {
		return fmt.Errorf("generation.section_concurrency must be positive")
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0,1]")
	}
	return nil
}

func (c Config) PostgresConfig() db.PostgresConfig {
	return db.PostgresConfig{
		DSN:             c.Postgres.DSN,
		Host:            c.Postgres.Host,
		Port:            c.Postgres.Port,
		User:            c.Postgres.User,
		Password:        c.Postgres.Password,
		Name:            c.Postgres.Name,
		SSLMode:         c.Postgres.SSLMode,
		MaxOpenConns:    c.Postgres.MaxOpenConns,
		MaxIdleConns:    c.Postgres.MaxIdleConns,
		ConnMaxLifetime: c.Postgres.ConnMaxLifetime,
	}
}

func (c Config) OtelConfig() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Version:     c.Version,
		Endpoint:    c.Otel.Endpoint,
		Headers:     c.Otel.Headers,
		Insecure:    c.Otel.Insecure,
		SampleRatio: c.Otel.SampleRatio,
	}
}

func (c Config) RedisConfig() bus.RedisConfig {
	return bus.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Channel:  c.Redis.Channel,
	}
}

func (c Config) ServiceConfig() services.ReportServiceConfig {
	return services.ReportServiceConfig{
		SectionConcurrency: c.Generation.SectionConcurrency,
		StaleAfter:         c.Generation.StaleAfter,
		FinalizeTimeout:    c.Generation.FinalizeTimeout,
	}
}
