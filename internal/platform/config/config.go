package config

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	Redis         RedisConfig
	Postgres      PostgresConfig
	Kafka         KafkaConfig
	Chain         ChainConfig
	Governance    GovernanceConfig
}

// RedisConfig configures the Redis client. An empty URL disables Redis and
// the in-memory replay set and registry are used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the receipt outbox database. An empty URL keeps
// receipts in memory only.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures receipt streaming. Brokers are only used when the
// Postgres outbox is enabled.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partitions   int32
	PollInterval time.Duration
	BatchSize    int
}

// ChainConfig binds signatures to this deployment.
type ChainConfig struct {
	ChainID             *big.Int
	LedgerAddress       string
	RouterAddress       string
	AllowListAddress    string
	SignatureValidity   time.Duration
	ShutdownTimeout     time.Duration
	BridgeFailThreshold int
	// ContractAddresses are accounts that pay business prices and need
	// preapproval to query.
	ContractAddresses   []string
}

// GovernanceConfig bootstraps the policy store.
type GovernanceConfig struct {
	AdminAddress    string
	TreasuryAddress string
	AMLThreshold    uint64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:     getEnv("PASSPORT_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		// Use a default for development - should be overridden in production
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "passport"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "passport-api"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:        getEnv("KAFKA_RECEIPTS_TOPIC", "passport.receipts"),
			Partitions:   int32(getInt("KAFKA_RECEIPTS_PARTITIONS", 3)),
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 100),
		},
		Chain: ChainConfig{
			ChainID:             getBig("CHAIN_ID", big.NewInt(1)),
			LedgerAddress:       getEnv("LEDGER_ADDRESS", "0x0000000000000000000000000000000000000a11"),
			RouterAddress:       getEnv("ROUTER_ADDRESS", "0x0000000000000000000000000000000000000a12"),
			AllowListAddress:    getEnv("ALLOWLIST_ADDRESS", "0x0000000000000000000000000000000000000a13"),
			SignatureValidity:   getDuration("SIGNATURE_VALIDITY", 6*time.Hour),
			ShutdownTimeout:     getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			BridgeFailThreshold: getInt("BRIDGE_FAILURE_THRESHOLD", 5),
			ContractAddresses:   splitList(os.Getenv("CONTRACT_ADDRESSES")),
		},
		Governance: GovernanceConfig{
			AdminAddress:    os.Getenv("GOVERNANCE_ADMIN"),
			TreasuryAddress: os.Getenv("PROTOCOL_TREASURY"),
			AMLThreshold:    uint64(getInt("AML_THRESHOLD", 5)),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBig(key string, fallback *big.Int) *big.Int {
	if v := os.Getenv(key); v != "" {
		if n, ok := new(big.Int).SetString(v, 10); ok {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
