package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment holds validated environment configuration
type Environment struct {
	GitHubToken   string
	OpenAIKey     string
	FallbackKey   string
	FallbackURL   string
	FallbackModel string
	Port          string
	Debug         bool
	DBPath        string
}

// Validate checks and validates all required environment variables
func Validate() (*Environment, error) {
	env := &Environment{
		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		FallbackKey:   os.Getenv("FALLBACK_API_KEY"),
		FallbackURL:   os.Getenv("FALLBACK_API_URL"),
		FallbackModel: os.Getenv("FALLBACK_MODEL"),
		Port:          os.Getenv("PORT"),
		Debug:         os.Getenv("DEBUG") == "true",
		DBPath:        os.Getenv("REPOPAL_DB"),
	}

	// Validate GitHub token
	if env.GitHubToken == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN not configured")
	}

	// Validate OpenAI key
	if env.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	// A fallback provider is optional, but a key without a URL is a
	// misconfiguration we want to catch at startup
	if env.FallbackKey != "" && env.FallbackURL == "" {
		return nil, fmt.Errorf("FALLBACK_API_KEY set but FALLBACK_API_URL not configured")
	}

	// Set default port if not specified
	if env.Port == "" {
		env.Port = "8080"
	}

	// Default database location
	if env.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		env.DBPath = filepath.Join(home, ".repopal", "repopal.db")
	}

	return env, nil
}
