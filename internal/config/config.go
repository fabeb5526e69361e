// Package config loads client configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxConversations = 8
	defaultMaxMessages      = 30
	storeBackendFile        = "file"
	storeBackendDynamoDB    = "dynamodb"
)

// Config aggregates everything the CLI needs to wire the client.
type Config struct {
	Region            string      `yaml:"region"`
	ApplicationID     string      `yaml:"applicationId"`
	BrokerEndpoint    string      `yaml:"brokerEndpoint"`
	AssistantEndpoint string      `yaml:"assistantEndpoint"`
	ParamPrefix       string      `yaml:"paramPrefix"`
	Store             StoreConfig `yaml:"store"`
	Chat              ChatConfig  `yaml:"chat"`
}

// StoreConfig selects and parameterizes the credential store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Table      string `yaml:"table"`
	SessionKey string `yaml:"sessionKey"`
}

// ChatConfig bounds list and history fetches.
type ChatConfig struct {
	MaxConversations int `yaml:"maxConversations"`
	MaxMessages      int `yaml:"maxMessages"`
}

// Load reads the YAML file at path (if it exists), applies QCHAT_* env
// overrides, and fills defaults. A missing file is not an error; env and
// defaults alone can form a complete configuration.
func Load(path string) (Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to env and defaults
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = storeBackendFile
	}
	if cfg.Store.Backend != storeBackendFile && cfg.Store.Backend != storeBackendDynamoDB {
		return Config{}, fmt.Errorf("config: unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultCredentialsPath()
	}
	if cfg.Chat.MaxConversations <= 0 {
		cfg.Chat.MaxConversations = defaultMaxConversations
	}
	if cfg.Chat.MaxMessages <= 0 {
		cfg.Chat.MaxMessages = defaultMaxMessages
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Region, "QCHAT_REGION")
	overrideString(&cfg.ApplicationID, "QCHAT_APPLICATION_ID")
	overrideString(&cfg.BrokerEndpoint, "QCHAT_BROKER_ENDPOINT")
	overrideString(&cfg.AssistantEndpoint, "QCHAT_ASSISTANT_ENDPOINT")
	overrideString(&cfg.ParamPrefix, "QCHAT_PARAM_PREFIX")
	overrideString(&cfg.Store.Backend, "QCHAT_STORE_BACKEND")
	overrideString(&cfg.Store.Path, "QCHAT_STORE_PATH")
	overrideString(&cfg.Store.Table, "QCHAT_STORE_TABLE")
	overrideString(&cfg.Store.SessionKey, "QCHAT_SESSION_KEY")
	overrideInt(&cfg.Chat.MaxConversations, "QCHAT_MAX_CONVERSATIONS")
	overrideInt(&cfg.Chat.MaxMessages, "QCHAT_MAX_MESSAGES")
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".qchat", "credentials.json")
	}
	return filepath.Join(home, ".qchat", "credentials.json")
}
