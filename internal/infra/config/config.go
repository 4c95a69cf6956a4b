package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gocql/gocql"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverScylla = "scylla"

	AuthHeader = "header"
	AuthStatic = "static"
	AuthMongo  = "mongo"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Config aggregates the service configuration loaded from environment variables.
type Config struct {
	Env             string        `env:"APP_ENV"               envDefault:"dev"`
	LogLevel        string        `env:"LOG_LEVEL"             envDefault:"info"`
	HTTPAddr        string        `env:"HTTP_ADDR"             envDefault:":8080"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS"  envDefault:"http://localhost:5173" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"      envDefault:"10s"`
	StoreDriver     string        `env:"STORE_DRIVER"          envDefault:"memory"`
	SQLitePath      string        `env:"SQLITE_PATH"           envDefault:"chatrelay.db"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL"       envDefault:"24h"`

	Mongo  MongoConfig  `envPrefix:"MONGO_"`
	Scylla ScyllaConfig `envPrefix:"SCYLLA_"`
	Kafka  KafkaConfig  `envPrefix:"KAFKA_"`
	S3     S3Config     `envPrefix:"S3_"`
	Auth   AuthConfig   `envPrefix:"AUTH_"`
	WS     WSConfig     `envPrefix:"WS_"`
}

type MongoConfig struct {
	URI            string        `env:"URI"`
	Database       string        `env:"DB"              envDefault:"chatrelay"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

type ScyllaConfig struct {
	Hosts             []string          `env:"HOSTS"              envDefault:"localhost" envSeparator:","`
	Keyspace          string            `env:"KEYSPACE"           envDefault:"chatrelay"`
	Username          string            `env:"USERNAME"`
	Password          string            `env:"PASSWORD"`
	ConsistencyName   string            `env:"CONSISTENCY"        envDefault:"quorum"`
	Timeout           time.Duration     `env:"TIMEOUT"            envDefault:"5s"`
	ReplicationFactor int               `env:"REPLICATION_FACTOR" envDefault:"1"`
	Consistency       gocql.Consistency
}

type KafkaConfig struct {
	Brokers            []string        `env:"BROKERS"              envSeparator:","`
	TopicPrefix        string          `env:"TOPIC_PREFIX"`
	ClientID           string          `env:"CLIENT_ID"            envDefault:"chatrelay"`
	OutboxPollInterval time.Duration   `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBackoff      []time.Duration `env:"OUTBOX_BACKOFF"       envDefault:"1s,5s,30s" envSeparator:","`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type S3Config struct {
	Endpoint      string `env:"ENDPOINT"`
	PublicBaseURL string `env:"PUBLIC_ENDPOINT"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Bucket        string `env:"BUCKET"          envDefault:"chat-media"`
	UseSSL        bool   `env:"USE_SSL"`
}

func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Endpoint) != "" }

type AuthConfig struct {
	Mode              string            `env:"MODE"               envDefault:"header"`
	Tokens            map[string]string `env:"TOKENS"`
	SessionCollection string            `env:"SESSION_COLLECTION" envDefault:"sessions"`
}

type WSConfig struct {
	SendBuffer   int           `env:"SEND_BUFFER"   envDefault:"64"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ReadLimit    int64         `env:"READ_LIMIT"    envDefault:"16777216"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	c.Kafka.Brokers = compact(c.Kafka.Brokers)
	c.Scylla.Hosts = compact(c.Scylla.Hosts)
	c.CORSOrigins = compact(c.CORSOrigins)

	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverScylla:
		if len(c.Scylla.Hosts) == 0 {
			errs = append(errs, errors.New("SCYLLA_HOSTS is required for the scylla driver"))
		}
		if !keyspacePattern.MatchString(c.Scylla.Keyspace) {
			errs = append(errs, fmt.Errorf("invalid SCYLLA_KEYSPACE: %q", c.Scylla.Keyspace))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER: %q", c.StoreDriver))
	}

	consistency, err := ParseConsistency(c.Scylla.ConsistencyName)
	if err != nil {
		errs = append(errs, err)
	}
	c.Scylla.Consistency = consistency
	if c.Scylla.ReplicationFactor < 1 {
		c.Scylla.ReplicationFactor = 1
	}

	switch c.Auth.Mode {
	case AuthHeader:
	case AuthStatic:
		if len(c.Auth.Tokens) == 0 {
			errs = append(errs, errors.New("AUTH_TOKENS is required for static auth"))
		}
	case AuthMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for mongo auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE: %q", c.Auth.Mode))
	}

	if c.WS.SendBuffer < 1 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NeedsMongo reports whether any component is backed by MongoDB.
func (c Config) NeedsMongo() bool {
	return c.StoreDriver == DriverMongo || c.Auth.Mode == AuthMongo
}

func ParseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "local_one":
		return gocql.LocalOne, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
