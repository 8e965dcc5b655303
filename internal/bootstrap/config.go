package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/voice-relay/internal/generation"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	GRPCAddr   string
	LogLevel   string

	GeminiAPIKey       string
	GeminiModel        string
	SystemInstructions string
	GenerationTimeout  time.Duration

	TTSCommand        string
	TTSLanguage       string
	TTSTempDir        string
	SynthesisTimeout  time.Duration
	SynthesisFallback bool

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int

	HealthInterval time.Duration

	StaticDir string
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":"+getEnv("PORT", "3000")),
		GRPCAddr:   getEnv("GRPC_ADDR", ":50051"),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "info")),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", generation.DefaultModel),
		SystemInstructions: getEnv("SYSTEM_INSTRUCTIONS", generation.DefaultSystemInstruction),
		GenerationTimeout:  getEnvDuration("GENERATION_TIMEOUT", 0),

		TTSCommand:        getEnv("TTS_COMMAND", synthesis.DefaultCommand),
		TTSLanguage:       getEnv("TTS_LANGUAGE", synthesis.DefaultLanguage),
		TTSTempDir:        getEnv("TTS_TEMP_DIR", ""),
		SynthesisTimeout:  getEnvDuration("SYNTHESIS_TIMEOUT", 0),
		SynthesisFallback: getEnvBool("SYNTHESIS_FALLBACK", true),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		HealthInterval: getEnvDuration("HEALTH_INTERVAL", 15*time.Second),

		StaticDir: getEnv("STATIC_DIR", "./public"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
