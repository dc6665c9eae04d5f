package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	Agent    AgentConfig
	Status   StatusConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
	HealthTimeout   time.Duration
}

// NATSConfig holds messaging transport configuration
type NATSConfig struct {
	URLs            []string
	Identity        string
	ConnectAttempts int
	ReconnectWait   time.Duration
	PingInterval    time.Duration
	MaxPingsOut     int
	RequestTimeout  time.Duration
}

// UploadConfig holds CV upload constraints
type UploadConfig struct {
	MaxFileSize int64
}

// PipelineConfig holds worker pool and stage execution configuration
type PipelineConfig struct {
	Workers      int
	QueueSize    int
	StageTimeout time.Duration
}

// AgentConfig holds the agent-execution client configuration
type AgentConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// StatusConfig holds status store retention configuration
type StatusConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			HealthTimeout:   getEnvAsDuration("DB_HEALTH_TIMEOUT", 3*time.Second),
		},
		NATS: NATSConfig{
			URLs:            getEnvAsList("NATS_URLS", []string{"nats://localhost:4222"}),
			Identity:        getEnv("NATS_IDENTITY", "cv-pipeline"),
			ConnectAttempts: getEnvAsInt("NATS_CONNECT_ATTEMPTS", 5),
			ReconnectWait:   getEnvAsDuration("NATS_RECONNECT_WAIT", 2*time.Second),
			PingInterval:    getEnvAsDuration("NATS_PING_INTERVAL", 20*time.Second),
			MaxPingsOut:     getEnvAsInt("NATS_MAX_PINGS_OUT", 3),
			RequestTimeout:  getEnvAsDuration("NATS_REQUEST_TIMEOUT", 5*time.Second),
		},
		Upload: UploadConfig{
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024),
		},
		Pipeline: PipelineConfig{
			Workers:      getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:    getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			StageTimeout: getEnvAsDuration("PIPELINE_STAGE_TIMEOUT", 3*time.Minute),
		},
		Agent: AgentConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Status: StatusConfig{
			MaxAge:        getEnvAsDuration("STATUS_MAX_AGE", 24*time.Hour),
			SweepInterval: getEnvAsDuration("STATUS_SWEEP_INTERVAL", time.Hour),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Agent.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if len(c.NATS.URLs) == 0 {
		return NewAppError("CONFIG_ERROR", "NATS_URLS is required", ErrInvalidInput)
	}
	return nil
}
