package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const defaultConfigHeader = `# irflow configuration
#
# Values here are overridden by IRFLOW_<SECTION>_<KEY> environment
# variables and by explicitly passed command-line flags.
#
# Analyses: %s

`

// GenerateDefaultConfigTOML renders the default configuration as TOML
func GenerateDefaultConfigTOML() (string, error) {
	return EncodeTOML(DefaultConfig())
}

// EncodeTOML renders config as commented TOML
func EncodeTOML(config *Config) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, defaultConfigHeader, strings.Join(config.Analysis.EnabledAnalyses(), ", "))

	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode TOML config: %w", err)
	}
	return buf.String(), nil
}

// DecodeTOML parses a TOML document over the defaults. Keys missing from
// the document keep their default values.
func DecodeTOML(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to decode TOML config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// SaveConfig writes config to path, as YAML when the extension says so
// and as TOML otherwise. Existing files are not overwritten unless force
// is set.
func SaveConfig(config *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to encode YAML config: %w", err)
		}
		data = out
	default:
		out, err := EncodeTOML(config)
		if err != nil {
			return err
		}
		data = []byte(out)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
