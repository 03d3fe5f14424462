// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends for the archive.
const (
	BackendLocal    = "local"
	BackendOneDrive = "onedrive"
)

// GraphConfig holds Microsoft Graph credentials. Either an app
// registration (tenant + client id/secret) or an externally supplied,
// already-valid access token.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AccessToken  string
}

// AgentConfig holds settings for the AI classification service.
type AgentConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float64
	Timeout       time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	MaxInputChars int

	// BundlePolicy is appended to the fixed analyst instructions and
	// states what attachment composition counts as a complete bundle
	// (single combined PDF vs. separate cover form + order sheet).
	BundlePolicy string
}

// Config holds all configuration for the archiver.
type Config struct {
	Mailbox string
	Graph   GraphConfig
	Agent   AgentConfig

	// Archive
	Backend  string
	BasePath string

	// Text extraction
	Pdftotext string

	// Pipeline
	Workers int

	// Redis (optional: dedup filter + outcome queue)
	RedisURL      string
	OutcomesQueue string
	DedupTTL      time.Duration

	// Postgres (optional: outcome journal)
	DatabaseURL string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailbox string `yaml:"mailbox"`
	Graph   struct {
		TenantID     string `yaml:"tenant_id"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		AccessToken  string `yaml:"access_token"`
	} `yaml:"graph"`
	Agent struct {
		APIKey       string  `yaml:"api_key"`
		BaseURL      string  `yaml:"base_url"`
		Model        string  `yaml:"model"`
		Temperature  float64 `yaml:"temperature"`
		BundlePolicy string  `yaml:"bundle_policy"`
	} `yaml:"agent"`
	Archive struct {
		Backend  string `yaml:"backend"`
		BasePath string `yaml:"base_path"`
	} `yaml:"archive"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Outcomes string `yaml:"outcomes"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The YAML file is optional;
// everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Mailbox: firstNonEmpty(raw.Mailbox, envOrDefault("MAILBOX", "me")),
		Graph: GraphConfig{
			TenantID:     firstNonEmpty(raw.Graph.TenantID, envOrDefault("TENANT_ID", "consumers")),
			ClientID:     firstNonEmpty(raw.Graph.ClientID, os.Getenv("CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Graph.ClientSecret, os.Getenv("CLIENT_SECRET")),
			AccessToken:  firstNonEmpty(raw.Graph.AccessToken, os.Getenv("GRAPH_ACCESS_TOKEN")),
		},
		Agent: AgentConfig{
			APIKey:        firstNonEmpty(raw.Agent.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:       firstNonEmpty(raw.Agent.BaseURL, envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")),
			Model:         firstNonEmpty(raw.Agent.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
			Temperature:   raw.Agent.Temperature,
			Timeout:       envOrDefaultDuration("AGENT_TIMEOUT", 60*time.Second),
			MaxAttempts:   envOrDefaultInt("AGENT_MAX_ATTEMPTS", 4),
			RetryBackoff:  envOrDefaultDuration("AGENT_RETRY_BACKOFF", 500*time.Millisecond),
			MaxInputChars: envOrDefaultInt("AGENT_MAX_INPUT_CHARS", 48000),
			BundlePolicy:  raw.Agent.BundlePolicy,
		},
		Backend:       firstNonEmpty(raw.Archive.Backend, envOrDefault("ARCHIVE_BACKEND", BackendLocal)),
		BasePath:      firstNonEmpty(raw.Archive.BasePath, envOrDefault("BEO_BASE_PATH", "beo_output")),
		Pdftotext:     envOrDefault("PDFTOTEXT_BIN", "pdftotext"),
		Workers:       envOrDefaultInt("WORKERS", 4),
		RedisURL:      firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		OutcomesQueue: firstNonEmpty(raw.Redis.Queues.Outcomes, envOrDefault("OUTCOMES_QUEUE", "beo-outcomes")),
		DedupTTL:      envOrDefaultDuration("DEDUP_TTL", 24*time.Hour),
		DatabaseURL:   firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
	}

	// SAVE_TO_ONEDRIVE is honoured for compatibility with earlier deployments.
	if isTruthy(os.Getenv("SAVE_TO_ONEDRIVE")) {
		cfg.Backend = BackendOneDrive
	}

	if cfg.Agent.APIKey == "" {
		return nil, fmt.Errorf("no AI credential configured — set OPENAI_API_KEY or agent.api_key")
	}

	switch cfg.Backend {
	case BackendLocal:
		if cfg.BasePath == "" {
			return nil, fmt.Errorf("local backend requires a base path — set BEO_BASE_PATH or archive.base_path")
		}
	case BackendOneDrive:
		if cfg.Graph.AccessToken == "" && (cfg.Graph.ClientID == "" || cfg.Graph.ClientSecret == "") {
			return nil, fmt.Errorf("onedrive backend requires graph credentials — set GRAPH_ACCESS_TOKEN or CLIENT_ID/CLIENT_SECRET")
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
