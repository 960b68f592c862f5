package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	// APIKey guards the HTTP API. The server refuses to start without it.
	APIKey     string `envconfig:"API_KEY"`
	PolicyFile string `envconfig:"POLICY_FILE"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".tasksmith/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"tasksmith/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type GenerationEnv struct {
	Backend       string `envconfig:"GENERATION_BACKEND" default:"genai"`
	GenAIAPIKey   string `envconfig:"GENAI_API_KEY"`
	GenAIModel    string `envconfig:"GENAI_MODEL" default:"gemini-2.5-flash"`
	ClaudeWorkDir string `envconfig:"CLAUDE_WORK_DIR" default:"."`
}

type EmbeddingEnv struct {
	Provider       string `envconfig:"EMBEDDING_PROVIDER" default:"genai"`
	Model          string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	OllamaEndpoint string `envconfig:"OLLAMA_ENDPOINT" default:"http://localhost:11434"`
	DBPath         string `envconfig:"EMBEDDING_DB_PATH" default:".tasksmith/embeddings.db"`
}

type Env struct {
	BaseEnv
	StorageEnv
	GenerationEnv
	EmbeddingEnv
}

const namespace = "TASKSMITH"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// Validate checks the settings that only matter for the chosen backends.
func (e *Env) Validate() error {
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required for s3 storage", namespace)
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	switch e.GenerationEnv.Backend {
	case "genai":
		if e.GenAIAPIKey == "" {
			return fmt.Errorf("%s_GENAI_API_KEY is required for the genai backend", namespace)
		}
	case "claude":
	default:
		return fmt.Errorf("unknown generation backend %q", e.GenerationEnv.Backend)
	}
	switch e.Provider {
	case "genai":
		if e.GenAIAPIKey == "" {
			return fmt.Errorf("%s_GENAI_API_KEY is required for genai embeddings", namespace)
		}
	case "ollama", "hash":
	default:
		return fmt.Errorf("unknown embedding provider %q", e.Provider)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
