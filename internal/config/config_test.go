package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
region: us-east-1
applicationId: app-1
brokerEndpoint: https://broker.example.com/exchange
assistantEndpoint: https://assistant.example.com
store:
  backend: file
  path: /tmp/creds.json
chat:
  maxConversations: 12
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.Region)
	require.Equal(t, "app-1", cfg.ApplicationID)
	require.Equal(t, "/tmp/creds.json", cfg.Store.Path)
	require.Equal(t, 12, cfg.Chat.MaxConversations)
	require.Equal(t, 30, cfg.Chat.MaxMessages, "default applies when unset")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "file", cfg.Store.Backend)
	require.NotEmpty(t, cfg.Store.Path)
	require.Equal(t, 8, cfg.Chat.MaxConversations)
	require.Equal(t, 30, cfg.Chat.MaxMessages)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "region: us-east-1\n")
	t.Setenv("QCHAT_REGION", "eu-west-1")
	t.Setenv("QCHAT_MAX_MESSAGES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", cfg.Region)
	require.Equal(t, 5, cfg.Chat.MaxMessages)
}

func TestLoad_UnknownStoreBackend(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: redis\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "store backend")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "region: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_DynamoBackendAccepted(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: dynamodb
  table: qchat-sessions
  sessionKey: user-1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dynamodb", cfg.Store.Backend)
	require.Equal(t, "qchat-sessions", cfg.Store.Table)
}
