package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/becomevocal/vanilla-agent-go/pkg/contentparser"
)

// Config is the YAML configuration of the serve command. Flags override
// file values.
type Config struct {
	Addr        string             `yaml:"addr"`
	UpstreamURL string             `yaml:"upstream_url"`
	ParserMode  contentparser.Mode `yaml:"parser_mode"`
	MetadataDB  string             `yaml:"metadata_db"`
	Metadata    map[string]any     `yaml:"metadata"`
}

func defaultConfig() Config {
	return Config{
		Addr:       ":8080",
		ParserMode: contentparser.ModeJSON,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}
