// Package config carrega a configuração do serviço a partir de variáveis
// de ambiente.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contém toda a configuração do serviço
type Config struct {
	HTTPAddr    string
	BasePath    string
	LogMode     string
	CORSOrigins []string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Stream   StreamConfig
	OpenAI   OpenAIConfig

	// Generator escolhe o backend de respostas: "scripted" ou "openai"
	Generator string

	RateLimitRPS   float64
	RateLimitBurst int
}

// DatabaseConfig contém as configurações do PostgreSQL
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
}

// ConnectionString retorna a URL de conexão, montada a partir dos campos
// individuais quando DATABASE_URL não foi informada
func (c DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig contém as configurações do Redis. Addr vazio desliga o
// lock distribuído.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockPrefix string
}

// JWTConfig contém as configurações dos tokens
type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// StreamConfig contém as janelas do produtor de streams
type StreamConfig struct {
	IdleTimeout      time.Duration
	Retention        time.Duration
	SweepInterval    time.Duration
	KeepAlive        time.Duration
	FragmentDelay    time.Duration
	LockTTL          time.Duration
	EventIDs         bool
	MaxMessageLength int
	Seed             uint64
}

// OpenAIConfig contém as configurações do backend OpenAI
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load lê a configuração do ambiente aplicando os valores padrão
func Load() (*Config, error) {
	jwtHours, err := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS inválido: %w", err)
	}

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		BasePath:    getEnv("API_BASE_PATH", "/api/v1"),
		LogMode:     getEnv("LOG_MODE", "development"),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		Database:    LoadDatabase(),
		Redis: RedisConfig{
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         getEnvInt("REDIS_DB", 0),
			LockPrefix: getEnv("REDIS_LOCK_PREFIX", "companychat:generation:"),
		},
		JWT: JWTConfig{
			SecretKey:  os.Getenv("JWT_SECRET_KEY"),
			Expiration: time.Duration(jwtHours) * time.Hour,
		},
		Stream: StreamConfig{
			IdleTimeout:      getEnvDuration("STREAM_IDLE_TIMEOUT", 30*time.Second),
			Retention:        getEnvDuration("STREAM_RETENTION", 5*time.Minute),
			SweepInterval:    getEnvDuration("STREAM_SWEEP_INTERVAL", 30*time.Second),
			KeepAlive:        getEnvDuration("STREAM_KEEPALIVE", 15*time.Second),
			FragmentDelay:    getEnvDuration("STREAM_FRAGMENT_DELAY", 50*time.Millisecond),
			LockTTL:          getEnvDuration("STREAM_LOCK_TTL", 5*time.Minute),
			EventIDs:         getEnvBool("STREAM_EVENT_IDS", true),
			MaxMessageLength: getEnvInt("CHAT_MAX_MESSAGE_LENGTH", 4000),
			Seed:             uint64(getEnvInt("STREAM_SEED", int(time.Now().UnixNano()%1_000_000))),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		Generator:      strings.ToLower(getEnv("GENERATOR", "scripted")),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase lê apenas a configuração do PostgreSQL
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Name:            getEnv("DB_NAME", "companychat"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxConnections:  int32(getEnvInt("DB_MAX_CONNECTIONS", 10)),
		MinConnections:  int32(getEnvInt("DB_MIN_CONNECTIONS", 1)),
		MaxConnLifetime: getEnvDuration("DB_MAX_LIFETIME", time.Hour),
	}
}

// Validate verifica combinações inválidas
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY não configurada")
	}
	switch c.Generator {
	case "scripted":
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("GENERATOR=openai exige OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("GENERATOR inválido: %q", c.Generator)
	}
	if c.Stream.IdleTimeout <= 0 || c.Stream.Retention <= 0 || c.Stream.SweepInterval <= 0 {
		return fmt.Errorf("janelas do stream devem ser positivas")
	}
	return nil
}

// getEnv retorna o valor de uma variável de ambiente ou um valor padrão
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvDuration aceita durações do Go ("30s", "5m")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
