// Package config loads settings for the hpctl command-line client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file given with --config.
//  3. Command-line flags, applied by the caller.
//
// File example:
//
//	{
//	  "server_addr": "127.0.0.1:50051",
//	  "timeout": "10s",
//	  "output": "json",
//	  "wait": true
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/timex"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

type Config struct {
	ServerAddr string
	// Timeout bounds a single command, waiting for settlement included.
	Timeout time.Duration
	Output  string
	// Wait makes mutating commands block until the chain settles them.
	Wait bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:50051"
	c.Timeout = 30 * time.Second
	c.Output = OutputText
	c.Wait = false
}

type fileConfig struct {
	ServerAddr *string         `json:"server_addr" yaml:"server_addr"`
	Timeout    *timex.Duration `json:"timeout" yaml:"timeout"`
	Output     *string         `json:"output" yaml:"output"`
	Wait       *bool           `json:"wait" yaml:"wait"`
}

// Load applies defaults and then the file at path, if path is not empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if fc.ServerAddr != nil {
		cfg.ServerAddr = *fc.ServerAddr
	}
	if fc.Timeout != nil {
		cfg.Timeout = fc.Timeout.Duration
	}
	if fc.Output != nil {
		cfg.Output = *fc.Output
	}
	if fc.Wait != nil {
		cfg.Wait = *fc.Wait
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Output != OutputText && c.Output != OutputJSON {
		return fmt.Errorf("invalid output %q: must be %s or %s", c.Output, OutputText, OutputJSON)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
