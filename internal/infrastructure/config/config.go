package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Cassandra CassandraConfig
	Redis     RedisConfig
	Session   SessionConfig
	Sweep     SweepConfig
}

type CassandraConfig struct {
	Hosts             []string      `env:"CASSANDRA_HOSTS,              default=localhost"`
	Keyspace          string        `env:"CASSANDRA_KEYSPACE,           default=cassauth"`
	ReplicationClass  string        `env:"CASSANDRA_REPLICATION_CLASS,  default=SimpleStrategy"`
	ReplicationFactor int           `env:"CASSANDRA_REPLICATION_FACTOR, default=1"`
	Consistency       string        `env:"CASSANDRA_CONSISTENCY,        default=quorum"`
	Timeout           time.Duration `env:"CASSANDRA_TIMEOUT,            default=10s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
	// CacheSessions enables the read-through session cache. When false the
	// service runs against Cassandra alone and Redis is never dialled.
	CacheSessions bool `env:"REDIS_CACHE_SESSIONS, default=false"`
}

type SessionConfig struct {
	// TTL is the lifetime of a newly created session (two weeks by default).
	TTL        time.Duration `env:"SESSION_TTL,         default=336h"`
	CookieName string        `env:"SESSION_COOKIE_NAME, default=sessionid"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,           default=24h"`
}

type SweepConfig struct {
	PageSize    int     `env:"SWEEP_PAGE_SIZE,     default=500"`
	PagesPerSec float64 `env:"SWEEP_PAGES_PER_SEC, default=4"`
	// Interval between background sweeps in serve mode; zero disables the
	// background job (the clear-expired command still works).
	Interval time.Duration `env:"SWEEP_INTERVAL, default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
