package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupField(t *testing.T) {
	f, err := LookupField([]string{"connect", "maxAttempts"})
	require.NoError(t, err)
	assert.Equal(t, "connect.maxAttempts", f.Path)
	assert.True(t, f.Leaf())

	f, err = LookupField([]string{"hubs"})
	require.NoError(t, err)
	assert.False(t, f.Leaf())
}

func TestLookupField_Unknown(t *testing.T) {
	tests := [][]string{
		{"gateway"},
		{"api", "port"},
		{"api", "baseUrl", "host"},
	}
	for _, path := range tests {
		_, err := LookupField(path)
		var ce *ConfigError
		assert.ErrorAs(t, err, &ce, "%v", path)
	}
}

func TestFieldSensitive(t *testing.T) {
	f, err := LookupField([]string{"api", "token"})
	require.NoError(t, err)
	assert.True(t, f.Sensitive())

	f, err = LookupField([]string{"api", "baseUrl"})
	require.NoError(t, err)
	assert.False(t, f.Sensitive())
}

func TestFieldParseValue(t *testing.T) {
	f, _ := LookupField([]string{"connect", "baseDelayMs"})
	v, err := f.ParseValue("250")
	require.NoError(t, err)
	assert.Equal(t, 250, v)
	_, err = f.ParseValue("soon")
	assert.Error(t, err)

	f, _ = LookupField([]string{"hubs", "reconnectDelaysMs"})
	v, err = f.ParseValue("0, 100,500")
	require.NoError(t, err)
	assert.Equal(t, []any{0, 100, 500}, v)

	f, _ = LookupField([]string{"state", "store"})
	v, err = f.ParseValue("memory")
	require.NoError(t, err)
	assert.Equal(t, "memory", v)

	f, _ = LookupField([]string{"logging"})
	_, err = f.ParseValue("debug")
	assert.Error(t, err)
}

func TestIsEnvReference(t *testing.T) {
	assert.True(t, IsEnvReference("${SIPDASH_TOKEN}"))
	assert.False(t, IsEnvReference("Bearer ${SIPDASH_TOKEN}"))
	assert.False(t, IsEnvReference("eyJhbGciOi"))
}

func TestFromRaw(t *testing.T) {
	cfg, err := FromRaw(map[string]any{
		"state": map[string]any{"store": "memory"},
	})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.State.Store)
	assert.Equal(t, Defaults().API.BaseURL, cfg.API.BaseURL)

	cfg, err = FromRaw(map[string]any{"logging": map[string]any{"level": "loud"}})
	require.NoError(t, err)
	assert.NotEmpty(t, Validate(&cfg))
}
