package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgellow/oauth-demo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OAUTH_DEMO_TEST_VALUE=from-file\n"), 0600))
	t.Setenv("OAUTH_DEMO_TEST_VALUE", "")
	os.Unsetenv("OAUTH_DEMO_TEST_VALUE")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("OAUTH_DEMO_TEST_VALUE"))
}

func TestValidateConfig_DefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, config.WriteDefault(path))

	assert.NoError(t, validateConfig(path))
}

func TestValidateConfig_Broken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v0.0.1-DEV_EDITION"}`), 0600))

	assert.Error(t, validateConfig(path))
}
