package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Model     ModelConfig
	Image     ImageConfig
	Supabase  SupabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Bootstrap BootstrapConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APIKey          string
}

type LogConfig struct {
	Level  string
	Format string
}

type ModelConfig struct {
	Name             string
	ServerURL        string
	Device           string
	LoadTimeout      time.Duration
	InferenceTimeout time.Duration
	Preload          bool
}

type ImageConfig struct {
	MaxBytes  int64
	MaxPixels int64
}

type SupabaseConfig struct {
	URL    string
	KEY    string
	BUCKET string
}

// Enabled reports whether depth maps should be uploaded to Supabase.
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.BUCKET != ""
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

type RabbitMQConfig struct {
	URL     string
	Queue   string
	Workers int
}

// Enabled reports whether jobs submitted to /run go through RabbitMQ.
func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

type BootstrapConfig struct {
	Commands []string
	Marker   string
	Timeout  time.Duration
}

var validDevices = map[string]bool{
	"auto": true,
	"cuda": true,
	"mps":  true,
	"cpu":  true,
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			APIKey:          getEnv("API_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Model: ModelConfig{
			Name:             getEnv("MODEL_NAME", "depth-anything/DA3-LARGE"),
			ServerURL:        getEnv("MODEL_SERVER_URL", "http://127.0.0.1:8000"),
			Device:           strings.ToLower(getEnv("MODEL_DEVICE", "auto")),
			LoadTimeout:      getDuration("MODEL_LOAD_TIMEOUT", 10*time.Minute),
			InferenceTimeout: getDuration("INFERENCE_TIMEOUT", 2*time.Minute),
			Preload:          getEnvAsBool("PRELOAD_MODEL", true),
		},
		Image: ImageConfig{
			MaxBytes:  getEnvAsInt64("MAX_IMAGE_BYTES", 10*1024*1024), // 10MB
			MaxPixels: getEnvAsInt64("MAX_IMAGE_PIXELS", 40_000_000),
		},
		Supabase: SupabaseConfig{
			URL:    getEnv("SUPABASE_URL", ""),
			KEY:    getEnv("SUPABASE_KEY", ""),
			BUCKET: getEnv("SUPABASE_BUCKET", ""),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			ResultTTL: getDuration("JOB_RESULT_TTL", time.Hour),
		},
		RabbitMQ: RabbitMQConfig{
			URL:     getEnv("RABBITMQ_URL", ""),
			Queue:   getEnv("RABBITMQ_QUEUE", "depth_jobs"),
			Workers: getEnvAsInt("QUEUE_WORKERS", 1),
		},
		Bootstrap: BootstrapConfig{
			Commands: getEnvAsList("BOOTSTRAP_COMMANDS", ";"),
			Marker:   getEnv("BOOTSTRAP_MARKER", ".bootstrap-done"),
			Timeout:  getDuration("BOOTSTRAP_TIMEOUT", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the worker cannot start with.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("MODEL_NAME must not be empty")
	}
	if !validDevices[c.Model.Device] {
		return fmt.Errorf("invalid MODEL_DEVICE %q: must be one of auto, cuda, mps, cpu", c.Model.Device)
	}
	if c.RabbitMQ.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be a positive integer, got %d", c.RabbitMQ.Workers)
	}
	if c.Image.MaxBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive, got %d", c.Image.MaxBytes)
	}
	if c.Image.MaxPixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.Image.MaxPixels)
	}
	return nil
}

// HTTPWriteTimeout is WRITE_TIMEOUT raised to cover one /runsync job: the
// inference timeout, plus the model load when it happens on first request.
func (c *Config) HTTPWriteTimeout() time.Duration {
	need := c.Model.InferenceTimeout
	if !c.Model.Preload {
		need += c.Model.LoadTimeout
	}
	if need > 0 {
		need += writeTimeoutMargin
	}
	if c.Server.WriteTimeout > need {
		return c.Server.WriteTimeout
	}
	return need
}

const writeTimeoutMargin = 30 * time.Second

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key, sep string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, sep) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
