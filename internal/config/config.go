// Package config loads server configuration from a JSON file at
// $XDG_CONFIG_HOME/lavra/config.json with LAVRA_* environment overrides.
// Secrets (API keys, tokens) come from the environment only.
package config

import (
	"fmt"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Chat      ChatConfig
	Evolution EvolutionConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Weather   WeatherConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type RedisConfig struct {
	URL string
}

type ChatConfig struct {
	DebounceSeconds  int
	BufferTTLSeconds int
}

type EvolutionConfig struct {
	BaseURL  string
	Instance string
	APIKey   string
}

type LLMConfig struct {
	OpenRouterAPIKey string
	Model            string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type WeatherConfig struct {
	APIKey string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Chat: ChatConfig{
			DebounceSeconds:  10,
			BufferTTLSeconds: 300,
		},
		Evolution: EvolutionConfig{
			BaseURL:  "http://localhost:8080",
			Instance: "lavra",
		},
		LLM: LLMConfig{
			Model: "openai/gpt-4o-mini",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file and applies LAVRA_*
// environment variable overrides. The OpenRouter API key is required and
// must come from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.OpenRouterAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenRouter API key. Set it via environment variable LAVRA_OPENROUTER_API_KEY")
	}
	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable LAVRA_API_TOKEN")
	}

	return cfg, nil
}
