package main

import (
	"fmt"
	"os"

	"querycore/pkg/config"
	"querycore/pkg/llm"
	"querycore/pkg/llm/anthropic"
	"querycore/pkg/llm/google"
	"querycore/pkg/llm/ollama"
	"querycore/pkg/llm/openai"
)

func anthropicProvider(cfg *config.ProviderConfig) (llm.Provider, error) {
	key, err := resolveAPIKey(cfg.APIKey, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	return anthropic.NewClient(key, cfg.Model), nil
}

func openaiProvider(cfg *config.ProviderConfig) (llm.Provider, error) {
	key, err := resolveAPIKey(cfg.APIKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return openai.NewClient(key, cfg.Model), nil
}

func ollamaProvider(cfg *config.ProviderConfig) (llm.Provider, error) {
	return ollama.NewClient(cfg.Host, cfg.Model), nil
}

func googleProvider(cfg *config.ProviderConfig) (llm.Provider, error) {
	key, err := resolveAPIKey(cfg.APIKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}
	return google.NewClient(key, cfg.Model), nil
}

// resolveAPIKey prefers the configured key (already env-substituted by the
// loader) and falls back to the conventional environment variable.
func resolveAPIKey(configured, envVar string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key configured and %s is unset (run with --setup)", envVar)
}
