// Package config declares the core's recognized configuration options
// (spec §6 "Configuration") and decodes them from the process environment
// with joeshaw/envdecode, the teacher's own configuration library.
package config

import "github.com/joeshaw/envdecode"

// Database holds the nested connection parameters for the Postgres backend.
type Database struct {
	Host     string `env:"QVARN_DB_HOST,default=localhost"`
	Port     int    `env:"QVARN_DB_PORT,default=5432"`
	Database string `env:"QVARN_DB_NAME,default=qvarn"`
	User     string `env:"QVARN_DB_USER,default=qvarn"`
	Password string `env:"QVARN_DB_PASSWORD"`
	MinConn  int    `env:"QVARN_DB_MIN_CONN,default=1"`
	MaxConn  int    `env:"QVARN_DB_MAX_CONN,default=10"`
}

// Config is the core's full recognized configuration (spec §6), consumed
// but never parsed by the core beyond this struct.
type Config struct {
	BaseURL                       string   `env:"QVARN_BASE_URL,default=http://localhost:8080"`
	EnableFineGrainedAccessControl bool    `env:"QVARN_ENABLE_FINE_GRAINED_ACCESS_CONTROL,default=false"`
	MemoryDatabase                bool     `env:"QVARN_MEMORY_DATABASE,default=true"`
	Database                      Database
	ResourceTypeDir               string `env:"QVARN_RESOURCE_TYPE_DIR,default=./resourcetypes"`
	DatabaseSchema                string `env:"QVARN_DB_SCHEMA,default=qvarn"`
	ListenAddr                    string `env:"QVARN_LISTEN_ADDR,default=:8080"`

	// Consumed by the host auth framework, not by the core itself (spec §6).
	TokenPublicKey string `env:"QVARN_TOKEN_PUBLIC_KEY"`
	TokenIssuer    string `env:"QVARN_TOKEN_ISSUER"`
	TokenAudience  string `env:"QVARN_TOKEN_AUDIENCE"`

	// KafkaBrokers, when non-empty, makes startup build a KafkaPublisher and
	// set it as the notify engine's Publisher; nothing in the module calls
	// its PublishAsync, so no notification is sent to Kafka.
	KafkaBrokers string `env:"QVARN_KAFKA_BROKERS"`
	KafkaTopic   string `env:"QVARN_KAFKA_TOPIC,default=qvarn-notifications"`
}

// Load decodes Config from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, err
	}
	return &cfg, nil
}
