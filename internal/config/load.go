package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PU"

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("topics.prefix", "/topic/VirtualTopic.eng.")
	v.SetDefault("identity.email_domain", "redhat.com")

	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.max_pool_size", 50)
	v.SetDefault("neo4j.timeout", 10*time.Second)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "UMB")
	v.SetDefault("nats.subjects", []string{"VirtualTopic.eng.>"})
	v.SetDefault("nats.durable", "provenance-updater")
	v.SetDefault("nats.fetch_wait", 5*time.Second)
	v.SetDefault("nats.ack_wait", 2*time.Minute)
	v.SetDefault("nats.nak_delay", 30*time.Second)
	v.SetDefault("nats.max_deliver", -1)

	v.SetDefault("koji.url", "")
	v.SetDefault("koji.timeout", 60*time.Second)

	v.SetDefault("errata.url", "")
	v.SetDefault("errata.timeout", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "provenance-updater:")
	v.SetDefault("redis.cache_ttl", 24*time.Hour)

	v.SetDefault("ledger.driver", "")
	v.SetDefault("ledger.dsn", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.cors_origins", []string{})

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.exporter", "otlp")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 0.1)
	v.SetDefault("otel.service_name", "provenance-updater")
	v.SetDefault("otel.version", "")
}

// Load builds the configuration from defaults, an optional YAML file and
// PU_-prefixed environment variables (PU_NEO4J_URI, PU_NATS_SUBJECTS, ...),
// in increasing order of precedence. An explicit path must exist; without
// one, ./config/provenance-updater.yaml and ./provenance-updater.yaml are
// tried.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("provenance-updater")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Env = strings.TrimSpace(c.Env)
	if c.Env == "" {
		c.Env = "development"
	}
	c.Identity.EmailDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Identity.EmailDomain), "@"))
	c.Koji.URL = strings.TrimRight(strings.TrimSpace(c.Koji.URL), "/")
	c.Errata.URL = strings.TrimRight(strings.TrimSpace(c.Errata.URL), "/")

	subjects := c.NATS.Subjects[:0]
	for _, s := range c.NATS.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	c.NATS.Subjects = subjects

	if c.Neo4j.MaxPoolSize <= 0 {
		c.Neo4j.MaxPoolSize = 50
	}
	if c.Neo4j.Timeout <= 0 {
		c.Neo4j.Timeout = 10 * time.Second
	}
	if c.NATS.FetchWait <= 0 {
		return errors.New("nats.fetch_wait must be positive")
	}
	if c.NATS.NakDelay < 0 {
		return errors.New("nats.nak_delay must not be negative")
	}

	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	switch c.Ledger.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid ledger.driver=%q", c.Ledger.Driver)
	}
	if c.Ledger.Driver != "" && strings.TrimSpace(c.Ledger.DSN) == "" {
		return fmt.Errorf("ledger.dsn is required for driver %q", c.Ledger.Driver)
	}

	c.OTel.Exporter = strings.ToLower(strings.TrimSpace(c.OTel.Exporter))
	switch c.OTel.Exporter {
	case "", "otlp":
		c.OTel.Exporter = "otlp"
	case "stdout":
	default:
		return fmt.Errorf("invalid otel.exporter=%q", c.OTel.Exporter)
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0,1], got %v", c.OTel.SampleRatio)
	}
	return nil
}

// Render prints the effective configuration with secrets masked.
func (c *Config) Render() ([]byte, error) {
	cp := *c
	if cp.Neo4j.Password != "" {
		cp.Neo4j.Password = "[REDACTED]"
	}
	if cp.Ledger.DSN != "" {
		cp.Ledger.DSN = "[REDACTED]"
	}
	return yaml.Marshal(&cp)
}
