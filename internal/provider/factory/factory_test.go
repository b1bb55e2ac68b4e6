package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/provider"
)

func TestRegisterConfiguredProviders(t *testing.T) {
	registry := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredProviders(config.Default(), registry))

	assert.Equal(t, []string{"huggingface", "openrouter"}, registry.Names())

	p, err := registry.Lookup("openrouter")
	require.NoError(t, err)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", p.Endpoint())
	assert.False(t, p.NonJSONIsTransient())

	hf, err := registry.Lookup("huggingface")
	require.NoError(t, err)
	assert.True(t, hf.NonJSONIsTransient())
}

func TestRegisterConfiguredProviders_NilRegistry(t *testing.T) {
	assert.Error(t, RegisterConfiguredProviders(config.Default(), nil))
}
