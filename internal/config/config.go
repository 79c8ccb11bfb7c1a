package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Agent   AgentConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type AgentConfig struct {
	// MaxToolRounds bounds the number of model invocations per chat turn.
	MaxToolRounds int
	// RetrievalTopK is how many resume passages a lookup returns.
	RetrievalTopK int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen2.5:7b",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Agent: AgentConfig{
			MaxToolRounds: 10,
			RetrievalTopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "resumed")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".resumed"
	}
	return filepath.Join(home, ".local", "share", "resumed")
}

// Load reads configuration from the JSON config file (if present) and
// RESUMED_* environment variables. Environment variables override file values.
func Load() (Config, error) {
	return loadWith(configFilePath())
}

func configFilePath() string {
	if p := os.Getenv("RESUMED_CONFIG"); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "resumed", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "resumed", "config.json")
}

func loadWith(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Agent.MaxToolRounds <= 0 {
		cfg.Agent.MaxToolRounds = defaults().Agent.MaxToolRounds
	}
	if cfg.Agent.RetrievalTopK <= 0 {
		cfg.Agent.RetrievalTopK = defaults().Agent.RetrievalTopK
	}

	return cfg, nil
}

// fileConfig mirrors the JSON config file layout. All fields are optional;
// absent fields keep their defaults.
type fileConfig struct {
	Port          *int    `json:"port"`
	OllamaBaseURL *string `json:"ollama_base_url"`
	ChatModel     *string `json:"chat_model"`
	EmbedModel    *string `json:"embed_model"`
	DataDir       *string `json:"data_dir"`
	MaxToolRounds *int    `json:"max_tool_rounds"`
	RetrievalTopK *int    `json:"retrieval_top_k"`
	LogLevel      *string `json:"log_level"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Port != nil {
		cfg.Server.Port = *fc.Port
	}
	if fc.OllamaBaseURL != nil {
		cfg.Ollama.BaseURL = *fc.OllamaBaseURL
	}
	if fc.ChatModel != nil {
		cfg.Ollama.ChatModel = *fc.ChatModel
	}
	if fc.EmbedModel != nil {
		cfg.Ollama.EmbedModel = *fc.EmbedModel
	}
	if fc.DataDir != nil {
		cfg.Storage.DataDir = *fc.DataDir
	}
	if fc.MaxToolRounds != nil {
		cfg.Agent.MaxToolRounds = *fc.MaxToolRounds
	}
	if fc.RetrievalTopK != nil {
		cfg.Agent.RetrievalTopK = *fc.RetrievalTopK
	}
	if fc.LogLevel != nil {
		cfg.Log.Level = *fc.LogLevel
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RESUMED_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RESUMED_OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("RESUMED_CHAT_MODEL"); v != "" {
		cfg.Ollama.ChatModel = v
	}
	if v := os.Getenv("RESUMED_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("RESUMED_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("RESUMED_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxToolRounds = n
		}
	}
	if v := os.Getenv("RESUMED_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
