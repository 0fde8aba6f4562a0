package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logging     LoggingConfig    `yaml:"logging"`
	Backend     BackendConfig    `yaml:"backend"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Queue       QueueConfig      `yaml:"queue"`
	Cache       CacheConfig      `yaml:"cache"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
	Backtest    BacktestConfig   `yaml:"backtest"`
	Narrative   RemoteConfig     `yaml:"narrative"`
	Parser      RemoteConfig     `yaml:"parser"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LoggingConfig struct {
	Level   string        `yaml:"level" default:"info"`
	Format  string        `yaml:"format" default:"json"`
	Output  string        `yaml:"output" default:"stdout"`
	Collect bool          `yaml:"collect"`
	Topic   string        `yaml:"topic" default:"stratlab.logs"`
	Flush   time.Duration `yaml:"flush_interval" default:"30s"`
}

// BackendConfig selects where results go: clickhouse, kafka or both.
type BackendConfig struct {
	Type string `yaml:"type" default:"clickhouse"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Topics       struct {
		Requests string `yaml:"requests" default:"backtest.requests"`
		Results  string `yaml:"results" default:"backtest.results"`
		Errors   string `yaml:"errors" default:"backtest.errors"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"stratlab-runner"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"backtest.requests.dlq"`
	} `yaml:"consumer"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"stratlab"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	BarsTable        string        `yaml:"bars_table" default:"bars_1m"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Name        string        `yaml:"name" default:"stratlab:runs"`
	Workers     int           `yaml:"workers" default:"2"`
	MaxRetries  int           `yaml:"max_retries" default:"3"`
	RetryDelay  time.Duration `yaml:"retry_delay" default:"5s"`
	PollTimeout time.Duration `yaml:"poll_timeout" default:"2s"`
}

type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" default:"10m"`
	MaxEntries      int           `yaml:"max_entries" default:"1000"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	RPS     float64 `yaml:"rps" default:"5"`
	Burst   int     `yaml:"burst" default:"10"`
}

type BacktestConfig struct {
	FillPolicy       string        `yaml:"fill_policy" default:"close"`
	MaxWorkers       int           `yaml:"max_workers" default:"4"`
	CancelCheckEvery int           `yaml:"cancel_check_every" default:"256"`
	SimilarTopN      int           `yaml:"similar_top_n" default:"5"`
	RunTimeout       time.Duration `yaml:"run_timeout" default:"2m"`
}

// RemoteConfig describes an optional HTTP collaborator behind a circuit breaker.
type RemoteConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

func (r RemoteConfig) Enabled() bool { return r.URL != "" }

// Load reads and parses a YAML configuration file, filling unset fields from defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML into a validated Config.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("FILL_POLICY"); v != "" {
		c.Backtest.FillPolicy = v
	}
	if v := getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backtest.MaxWorkers = n
		}
	}
	if v := getenv("NARRATIVE_URL"); v != "" {
		c.Narrative.URL = v
	}
	if v := getenv("PARSER_URL"); v != "" {
		c.Parser.URL = v
	}
	if v := getenv("NARRATIVE_API_KEY"); v != "" {
		c.Narrative.APIKey = v
	}
	if v := getenv("PARSER_API_KEY"); v != "" {
		c.Parser.APIKey = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "clickhouse", "both":
	case "kafka":
		if !c.Kafka.Enabled() {
			return fmt.Errorf("backend.type 'kafka' needs kafka.brokers")
		}
	default:
		return fmt.Errorf("backend.type must be 'clickhouse', 'kafka' or 'both', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "both" && !c.Kafka.Enabled() {
		return fmt.Errorf("backend.type 'both' needs kafka.brokers")
	}
	if c.Backtest.FillPolicy != "close" && c.Backtest.FillPolicy != "next_open" {
		return fmt.Errorf("backtest.fill_policy must be 'close' or 'next_open', got '%s'", c.Backtest.FillPolicy)
	}
	if c.Backtest.MaxWorkers < 1 {
		return fmt.Errorf("backtest.max_workers must be at least 1")
	}
	if c.Kafka.Consumer.Enabled && !c.Kafka.Enabled() {
		return fmt.Errorf("kafka.consumer.enabled needs kafka.brokers")
	}
	return nil
}
