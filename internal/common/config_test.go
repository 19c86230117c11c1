package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/promolink/internal/interfaces"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 60, config.Dedup.WindowMinutes)
	assert.Equal(t, 0.5, config.Dedup.FuzzyThreshold)
	assert.Equal(t, []string{"t.me/promosliterais"}, config.Links.OwnChannels)
	assert.Contains(t, config.Links.Blacklist, "t.me")
	assert.Equal(t, "luiz4opromos-20", config.Amazon.Tag)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[dedup]
window_minutes = 30
fuzzy_threshold = 0.6

[amazon]
tag = "base-20"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[amazon]
tag = "override-20"

[links]
expand_timeout = "5s"
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 30, config.Dedup.WindowMinutes)
	assert.Equal(t, 0.6, config.Dedup.FuzzyThreshold)
	assert.Equal(t, "override-20", config.Amazon.Tag)
	assert.Equal(t, 5*time.Second, config.Links.ExpandTimeout.Std())
	// untouched defaults survive
	assert.Equal(t, "drmkt", config.MercadoLivre.Tag)
}

func TestLoadFromFiles_Durations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promolink.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[history]
retention = "168h"

[mercadolivre]
timeout = "2500ms"

[scraper]
request_timeout = "1m"
`), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 168*time.Hour, config.History.Retention.Std())
	assert.Equal(t, 2500*time.Millisecond, config.MercadoLivre.Timeout.Std())
	assert.Equal(t, time.Minute, config.Scraper.RequestTimeout.Std())
	assert.Equal(t, 15*time.Second, config.Links.ExpandTimeout.Std())
}

func TestLoadFromFiles_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promolink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[links]\nexpand_timeout = \"soon\"\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "promolink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[amazon]\ntag = \"file-20\"\n"), 0644))

	t.Setenv("PROMOLINK_AMAZON_TAG", "env-20")
	t.Setenv("PROMOLINK_LINKS_OWN_CHANNELS", "t.me/a, t.me/b ,")
	t.Setenv("PROMOLINK_DEDUP_WINDOW_MINUTES", "90")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "env-20", config.Amazon.Tag)
	assert.Equal(t, []string{"t.me/a", "t.me/b"}, config.Links.OwnChannels)
	assert.Equal(t, 90, config.Dedup.WindowMinutes)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero window", func(c *Config) { c.Dedup.WindowMinutes = 0 }},
		{"threshold above one", func(c *Config) { c.Dedup.FuzzyThreshold = 1.5 }},
		{"unknown provider", func(c *Config) { c.Rewriter.Provider = "gpt" }},
		{"redis without url", func(c *Config) { c.History.Backend = "redis" }},
		{"empty badger path", func(c *Config) { c.Storage.Badger.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9999, "0.0.0.0")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
}

type mapKV struct {
	interfaces.KeyValueStorage
	values map[string]string
}

func (m *mapKV) Get(ctx context.Context, key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func TestResolveAPIKey_Priority(t *testing.T) {
	ctx := context.Background()
	kv := &mapKV{values: map[string]string{SecretShopeeSecret: "from-kv"}}

	value, err := ResolveAPIKey(ctx, kv, SecretShopeeSecret, "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-kv", value)

	t.Setenv("PROMOLINK_SHOPEE_SECRET", "from-env")
	value, err = ResolveAPIKey(ctx, kv, SecretShopeeSecret, "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	value, err = ResolveAPIKey(ctx, nil, SecretAliExpressAppSecret, "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", value)

	_, err = ResolveAPIKey(ctx, nil, SecretAliExpressAppSecret, "")
	assert.Error(t, err)
}

func TestSecretResolver_EmptyWhenMissing(t *testing.T) {
	resolver := NewSecretResolver(nil)
	assert.Equal(t, "", resolver.Resolve(context.Background(), SecretWhatsAppToken, ""))
	assert.Equal(t, "cfg", resolver.Resolve(context.Background(), SecretWhatsAppToken, "cfg"))
}
