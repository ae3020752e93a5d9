package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string

	OpenAIAPIKey string
	OpenAIModel  string
	GoogleAPIKey string
	GeminiModel  string

	Temperature float64
	MaxTokens   int

	SummaryThreshold int
	SummaryHead      int
	SummaryTail      int
	MaxKeyArguments  int
}

func Load() Config {
	return Config{
		Port:        envInt("ROSTRUM_PORT", 8760),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		OpenAIAPIKey: envStr("OPENAI_API_KEY", ""),
		OpenAIModel:  envStr("ROSTRUM_OPENAI_MODEL", "gpt-4o-mini"),
		GoogleAPIKey: envStr("GOOGLE_API_KEY", ""),
		GeminiModel:  envStr("ROSTRUM_GEMINI_MODEL", "gemini-2.0-flash-exp"),

		Temperature: envFloat("ROSTRUM_TEMPERATURE", 0.7),
		MaxTokens:   envInt("ROSTRUM_MAX_TOKENS", 500),

		SummaryThreshold: envInt("ROSTRUM_SUMMARY_THRESHOLD", 6),
		SummaryHead:      envInt("ROSTRUM_SUMMARY_HEAD", 2),
		SummaryTail:      envInt("ROSTRUM_SUMMARY_TAIL", 4),
		MaxKeyArguments:  envInt("ROSTRUM_MAX_KEY_ARGUMENTS", 3),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
