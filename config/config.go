/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tomoncle/itemsvc/credential"
	"github.com/tomoncle/itemsvc/database"
	"gopkg.in/yaml.v3"
)

// DefaultDotEnv is loaded when present in the working directory.
const DefaultDotEnv = ".env"

type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"SERVER_ADDR" env-default:":3000"`
	AllowedOrigins    []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT" env-default:"10s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// RequestTimeout bounds each API request. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"` // text、json
}

// Config is built once at start and shared read-only afterwards.
type Config struct {
	Server   ServerConfig              `yaml:"server"`
	Database database.ConnectionConfig `yaml:"database"`
	Auth     credential.Config         `yaml:"auth"`
	Log      LogConfig                 `yaml:"log"`
}

// Load reads the optional dotenv files, then the optional YAML file at path,
// then applies environment overrides and defaults. Missing dotenv files are
// ignored; a missing YAML file is an error when path is set.
func Load(path string, dotenv ...string) (*Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{DefaultDotEnv}
	}
	if err := loadDotEnv(dotenv); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.Database.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server request_timeout cannot be negative")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(c.Auth.TokenAuth()); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	return nil
}

// Usage describes the environment variables understood by Load.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}
