package config

import "time"

type Config struct {
	Env      string         `mapstructure:"env" yaml:"env"`
	Topics   TopicsConfig   `mapstructure:"topics" yaml:"topics"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j" yaml:"neo4j"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Koji     KojiConfig     `mapstructure:"koji" yaml:"koji"`
	Errata   ErrataConfig   `mapstructure:"errata" yaml:"errata"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Ledger   LedgerConfig   `mapstructure:"ledger" yaml:"ledger"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	OTel     OTelConfig     `mapstructure:"otel" yaml:"otel"`
}

type TopicsConfig struct {
	// Prefix is prepended to every handler topic suffix, e.g. "distgit.commit".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type IdentityConfig struct {
	// EmailDomain marks addresses whose local part is the username.
	EmailDomain string `mapstructure:"email_domain" yaml:"email_domain"`
}

type Neo4jConfig struct {
	URI         string        `mapstructure:"uri" yaml:"uri"`
	User        string        `mapstructure:"user" yaml:"user"`
	Password    string        `mapstructure:"password" yaml:"password"`
	Database    string        `mapstructure:"database" yaml:"database"`
	MaxPoolSize int           `mapstructure:"max_pool_size" yaml:"max_pool_size"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type NATSConfig struct {
	URL      string   `mapstructure:"url" yaml:"url"`
	Stream   string   `mapstructure:"stream" yaml:"stream"`
	Subjects []string `mapstructure:"subjects" yaml:"subjects"`
	Durable  string   `mapstructure:"durable" yaml:"durable"`

	FetchWait  time.Duration `mapstructure:"fetch_wait" yaml:"fetch_wait"`
	AckWait    time.Duration `mapstructure:"ack_wait" yaml:"ack_wait"`
	NakDelay   time.Duration `mapstructure:"nak_delay" yaml:"nak_delay"`
	MaxDeliver int           `mapstructure:"max_deliver" yaml:"max_deliver"`
}

type KojiConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ErrataConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RedisConfig struct {
	// Addr enables the build cache when non-empty.
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	DB        int           `mapstructure:"db" yaml:"db"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type LedgerConfig struct {
	// Driver is "postgres", "sqlite" or empty (ledger disabled).
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// CORSOrigins lists browser origins allowed to read the admin API.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type OTelConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	Version     string  `mapstructure:"version" yaml:"version"`
}
