package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultConfigTOML(t *testing.T) {
	out, err := GenerateDefaultConfigTOML()
	require.NoError(t, err)

	assert.Contains(t, out, "# irflow configuration")
	assert.Contains(t, out, "[analysis]")
	assert.Contains(t, out, "[output]")
	assert.Contains(t, out, "[runtime]")

	config, err := DecodeTOML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestDecodeTOML(t *testing.T) {
	config, err := DecodeTOML([]byte("[runtime]\ndebug = true\n"))
	require.NoError(t, err)
	assert.True(t, config.Runtime.Debug)
	assert.Equal(t, DefaultOutputFormat, config.Output.Format)

	_, err = DecodeTOML([]byte("[analysis\n"))
	assert.Error(t, err)

	_, err = DecodeTOML([]byte("[analysis]\nanalyses = [\"nope\"]\n"))
	assert.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.Output.Format = "json"

	t.Run("TOML", func(t *testing.T) {
		path := filepath.Join(dir, ".irflow.toml")
		require.NoError(t, SaveConfig(config, path, false))

		loaded, err := LoadConfig(path, "")
		require.NoError(t, err)
		assert.Equal(t, config, loaded)
	})

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, ".irflow.yaml")
		require.NoError(t, SaveConfig(config, path, false))

		loaded, err := LoadConfig(path, "")
		require.NoError(t, err)
		assert.Equal(t, "json", loaded.Output.Format)
	})

	t.Run("RefusesOverwrite", func(t *testing.T) {
		path := filepath.Join(dir, "existing.toml")
		require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

		err := SaveConfig(config, path, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		require.NoError(t, SaveConfig(config, path, true))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEqual(t, "keep", string(data))
	})
}
