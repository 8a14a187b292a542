package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// format pairs a config file syntax with its codec.
type format struct {
	name   string
	decode func(data []byte, cfg *Config) error
	encode func(cfg *Config) ([]byte, error)
}

var (
	tomlFormat = format{
		name: "TOML",
		decode: func(data []byte, cfg *Config) error {
			_, err := toml.Decode(string(data), cfg)
			return err
		},
		encode: func(cfg *Config) ([]byte, error) {
			var buf bytes.Buffer
			buf.WriteString("# atracker configuration\n\n")
			err := toml.NewEncoder(&buf).Encode(cfg)
			return buf.Bytes(), err
		},
	}
	jsonFormat = format{
		name:   "JSON",
		decode: func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
		encode: func(cfg *Config) ([]byte, error) {
			data, err := json.MarshalIndent(cfg, "", "  ")
			return append(data, '\n'), err
		},
	}
	yamlFormat = format{
		name:   "YAML",
		decode: func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
		encode: func(cfg *Config) ([]byte, error) { return yaml.Marshal(cfg) },
	}
)

// formatsByExt maps a file extension to its format. Files with any other
// extension are sniffed in sniffOrder.
var formatsByExt = map[string]format{
	".toml": tomlFormat,
	".json": jsonFormat,
	".yaml": yamlFormat,
	".yml":  yamlFormat,
}

var sniffOrder = []format{tomlFormat, jsonFormat, yamlFormat}

// decodeFile reads path over the defaults. A missing file yields the defaults.
func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if f, ok := formatsByExt[filepath.Ext(path)]; ok {
		cfg := DefaultConfig()
		if err := f.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
		return cfg, nil
	}

	// Each attempt starts from fresh defaults so a failed one leaves no residue.
	for _, f := range sniffOrder {
		cfg := DefaultConfig()
		if f.decode(data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("parse config: unable to parse config file (tried TOML, JSON, YAML)")
}

// Encode renders cfg for the given extension (".toml", ".json", ".yaml",
// ".yml"). Anything else is rendered as TOML.
func Encode(cfg *Config, ext string) ([]byte, error) {
	f, ok := formatsByExt[ext]
	if !ok {
		f = tomlFormat
	}
	data, err := f.encode(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.name, err)
	}
	return data, nil
}

// SaveConfig writes cfg to path in the format implied by its extension.
// The write goes through a temporary file so watchers never observe a
// half-written config.
func SaveConfig(cfg *Config, path string) error {
	data, err := Encode(cfg, filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
