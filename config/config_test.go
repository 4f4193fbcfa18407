package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentfeed/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.toml")} {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
		assert.Equal(t, "0.0.0.0:3000", cfg.Address())
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
languages = ["en", "de"]

[server]
port = 8080
ping_interval = "5s"

[client]
url = "http://feed.example.com"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep their default")
	assert.Equal(t, 5*time.Second, cfg.Server.PingInterval)
	assert.Equal(t, "http://feed.example.com", cfg.Client.URL)
	assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
	assert.Equal(t, []string{"en", "de"}, cfg.Languages)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad port":     "[server]\nport = 70000\n",
		"bad language": "languages = [\"English\"]\n",
		"empty path":   "[database]\npath = \"\"\n",
		"not toml":     "server = [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.toml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.toml", `
[[users]]
id = "u1"
name = "Ada"

[[channels]]
user_id = "u1"
key = "ada"
public = true

[[contents]]
id = "c1"
channel_id = "u1"
title = "Hello"
public = true
created_at = 2024-03-01T10:00:00Z

[[contents]]
channel_id = "u1"
title = "Draft"
draft = true
`)

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Users, 1)
	require.Len(t, seed.Channels, 1)
	require.Len(t, seed.Contents, 2)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ch := seed.Channels[0].Model(now)
	assert.Equal(t, "u1", ch.ID)
	assert.True(t, ch.Public)

	first := seed.Contents[0].Model(now)
	assert.Equal(t, models.TimestampFromTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), first.CreatedAt)

	second := seed.Contents[1].Model(now)
	assert.Equal(t, models.TimestampFromTime(now), second.CreatedAt)
	assert.True(t, second.Draft)
}

func TestLoadSeedRequiresOwners(t *testing.T) {
	_, err := LoadSeed(writeFile(t, "seed.toml", "[[channels]]\nkey = \"orphan\"\n"))
	assert.Error(t, err)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
