package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Engine struct {
		MaxPaths        int     `yaml:"max_paths"`
		MaxSteps        int     `yaml:"max_steps"`
		MinObservations int     `yaml:"min_observations"`
		DefaultPaths    int     `yaml:"default_paths"`
		DefaultHorizon  int     `yaml:"default_horizon"`
		Workers         int     `yaml:"workers"`
		PremiumRate     float64 `yaml:"premium_rate"`
		PriceFloor      float64 `yaml:"price_floor"`
	} `yaml:"engine"`
	PVWatts struct {
		APIKey     string        `yaml:"api_key"`
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		SystemKW   float64       `yaml:"system_kw"`
		Losses     float64       `yaml:"losses"`
		ModuleType int           `yaml:"module_type"`
		ArrayType  int           `yaml:"array_type"`
		Tilt       float64       `yaml:"tilt"`
		Azimuth    float64       `yaml:"azimuth"`
	} `yaml:"pvwatts"`
	IEX struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
		FallbackPrice float64       `yaml:"fallback_price"` // Rs/MWh
	} `yaml:"iex"`
	FX struct {
		USDINR   float64       `yaml:"usd_inr"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"fx"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
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

	if v := os.Getenv("PVWATTS_API_KEY"); v != "" {
		c.PVWatts.APIKey = v
	}
	if v := os.Getenv("IEX_BASE_URL"); v != "" {
		c.IEX.BaseURL = v
	}
	if v := os.Getenv("USD_INR_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			c.FX.USDINR = rate
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.PVWatts.APIKey == "" {
		return fmt.Errorf("pvwatts.api_key is required")
	}
	if c.Engine.MaxPaths <= 0 {
		return fmt.Errorf("engine.max_paths must be > 0")
	}
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps must be > 0")
	}
	if c.FX.USDINR <= 0 {
		return fmt.Errorf("fx.usd_inr must be > 0")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
