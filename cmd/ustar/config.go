package main

import (
	"os"

	"github.com/go-errors/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig supplies defaults for flags a caller didn't pass explicitly;
// command-line flags always win over these.
type fileConfig struct {
	Algorithm      string `yaml:"algorithm"`
	Portable       bool   `yaml:"portable"`
	Strict         bool   `yaml:"strict"`
	CopySymlinks   string `yaml:"copy_symlinks"`
	SetPermissions bool   `yaml:"set_permissions"`
}

func loadConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 1)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, 1)
	}
	return &cfg, nil
}
