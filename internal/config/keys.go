package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LAVRA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "LAVRA_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LAVRA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "redis.url", typ: kString, env: "LAVRA_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Redis.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.URL },
	},
	{
		key: "chat.debounce_seconds", typ: kInt, env: "LAVRA_CHAT_DEBOUNCE_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Chat.DebounceSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.DebounceSeconds },
	},
	{
		key: "chat.buffer_ttl_seconds", typ: kInt, env: "LAVRA_CHAT_BUFFER_TTL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Chat.BufferTTLSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.BufferTTLSeconds },
	},
	{
		key: "evolution.base_url", typ: kString, env: "LAVRA_EVOLUTION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Evolution.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Evolution.BaseURL },
	},
	{
		key: "evolution.instance", typ: kString, env: "LAVRA_EVOLUTION_INSTANCE",
		apply:   func(cfg *Config, v any) { cfg.Evolution.Instance = v.(string) },
		extract: func(cfg Config) any { return cfg.Evolution.Instance },
	},
	{
		key: "evolution.api_key", typ: kString, env: "LAVRA_EVOLUTION_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Evolution.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Evolution.APIKey },
	},
	{
		key: "llm.openrouter_api_key", typ: kString, env: "LAVRA_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenRouterAPIKey },
	},
	{
		key: "llm.model", typ: kString, env: "LAVRA_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LAVRA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "LAVRA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "weather.api_key", typ: kString, env: "LAVRA_OPENWEATHER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Weather.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.APIKey },
	},
	{
		key: "log.level", typ: kString, env: "LAVRA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
