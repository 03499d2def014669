package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	DBPath    string
	StaticDir string

	Provider  string // "ollama" or "openai"
	OllamaURL string
	Model     string

	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	ContextPolicy string // "replay_all" or "window"
	ContextBudget int    // token budget for the window policy

	// Commands the terminal endpoint may run. Empty means the endpoint
	// rejects everything.
	AllowedCommands []string
}

const defaultSystemPrompt = `You are a helpful AI assistant. Answer the user's questions clearly and concisely, using the conversation history for context.`

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Load reads all env vars and builds the config. A .env file in the working
// directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:      getEnv("CHATD_ADDR", "127.0.0.1:6666"),
		DBPath:    getEnv("CHATD_DB_PATH", "chatd.db"),
		StaticDir: getEnv("CHATD_STATIC_DIR", "web"),

		Provider:  getEnv("CHATD_PROVIDER", "ollama"),
		OllamaURL: getEnv("OLLAMA_URL", "http://localhost:11434"),
		Model:     getEnv("OLLAMA_MODEL", "mistral:latest"),

		SystemPrompt: getEnv("CHATD_SYSTEM_PROMPT", defaultSystemPrompt),
		Temperature:  getFloat("CHATD_TEMPERATURE", 0.3),
		MaxTokens:    getInt("CHATD_MAX_TOKENS", 200),

		ContextPolicy: getEnv("CHATD_CONTEXT_POLICY", "replay_all"),
		ContextBudget: getInt("CHATD_CONTEXT_BUDGET", 4096),
	}

	if raw := os.Getenv("CHATD_ALLOWED_COMMANDS"); raw != "" {
		for _, cmd := range strings.Split(raw, ",") {
			if cmd = strings.TrimSpace(cmd); cmd != "" {
				cfg.AllowedCommands = append(cfg.AllowedCommands, cmd)
			}
		}
	}

	return cfg
}
