package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fintalk-ai/fintalk-core/core"
)

// config is the server's file-backed configuration. API keys are not part of
// it; vendor clients read those from the environment.
type config struct {
	Addr string `yaml:"addr"`

	OpenAI struct {
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"openai"`

	Deepgram struct {
		Voice string `yaml:"voice"`
	} `yaml:"deepgram"`

	Routing struct {
		BacktestThreshold float64 `yaml:"backtest_threshold"`
		SearchThreshold   float64 `yaml:"search_threshold"`
	} `yaml:"routing"`

	Instructions string `yaml:"instructions"`
}

func defaultConfig() config {
	cfg := config{Addr: ":8080"}
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.Routing.BacktestThreshold = orchestration.DefaultBacktestThreshold
	cfg.Routing.SearchThreshold = orchestration.DefaultSearchThreshold
	cfg.Instructions = "You are a helpful financial assistant. Keep answers short and speakable."
	return cfg
}

// loadConfig layers an optional YAML file over the defaults and loads a .env
// file when one is present.
func loadConfig(path string) (config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
