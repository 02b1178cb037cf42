// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration for tinyipc buses: the option set
// with its defaults and validation, plus YAML file and environment loading
// for the command line tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for every option.
const (
	DefaultMaxFileSize    = 1 << 20
	DefaultMaxReaderCount = 6
	DefaultMinMessageAge  = 500 * time.Millisecond
	DefaultWaitTimeout    = 5 * time.Second
)

var (
	// ErrInvalidName is returned when the bus name is empty.
	ErrInvalidName = errors.New("config: bus name must not be empty")

	// ErrInvalidCapacity is returned when the log capacity is below one byte.
	ErrInvalidCapacity = errors.New("config: max file size must be >= 1")

	// ErrInvalidReaderCount is returned when the reader count is below one.
	ErrInvalidReaderCount = errors.New("config: max reader count must be >= 1")
)

// Options configures one bus instance.
type Options struct {
	// Name is the bus identifier. Processes using the same name share a log.
	Name string

	// MaxFileSize is the capacity in bytes for the serialized log.
	MaxFileSize int64

	// MaxReaderCount is the number of concurrent cross-process readers; a
	// writer must collect this many permits to gain exclusion.
	MaxReaderCount int

	// MinMessageAge is the lower bound on an entry's lifetime before it may
	// be trimmed.
	MinMessageAge time.Duration

	// WaitTimeout is the ceiling on any individual lock acquisition.
	WaitTimeout time.Duration
}

// Default returns the options for a bus name with every other option at its
// default.
func Default(name string) Options {
	o := Options{Name: name}
	o.ApplyDefaults()
	return o
}

// ApplyDefaults fills every unset (zero) numeric option with its default,
// WaitTimeout included. Negative values are left for Validate to judge.
func (o *Options) ApplyDefaults() {
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxReaderCount == 0 {
		o.MaxReaderCount = DefaultMaxReaderCount
	}
	if o.MinMessageAge == 0 {
		o.MinMessageAge = DefaultMinMessageAge
	}
	if o.WaitTimeout == 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if o.Name == "" {
		return ErrInvalidName
	}
	if o.MaxFileSize < 1 {
		return ErrInvalidCapacity
	}
	if o.MaxReaderCount < 1 {
		return ErrInvalidReaderCount
	}
	return nil
}

// FileConfig is the YAML configuration accepted by the command line tool.
type FileConfig struct {
	Name           string `yaml:"name,omitempty"`
	MaxFileSize    int64  `yaml:"maxFileSize,omitempty"`
	MaxReaderCount int    `yaml:"maxReaderCount,omitempty"`
	MinMessageAge  string `yaml:"minMessageAge,omitempty"` // e.g. "500ms"
	WaitTimeout    string `yaml:"waitTimeout,omitempty"`   // e.g. "5s"
	LogLevel       string `yaml:"logLevel,omitempty"`
	MetricsListen  string `yaml:"metricsListen,omitempty"` // e.g. ":9090"
}

// Load reads a FileConfig from a YAML file.
func Load(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// ApplyEnv overrides file values from TINYIPC_* environment variables.
func (fc *FileConfig) ApplyEnv() {
	if v := os.Getenv("TINYIPC_NAME"); v != "" {
		fc.Name = v
	}
	if v := os.Getenv("TINYIPC_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			fc.MaxFileSize = n
		}
	}
	if v := os.Getenv("TINYIPC_MAX_READER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fc.MaxReaderCount = n
		}
	}
	if v := os.Getenv("TINYIPC_MIN_MESSAGE_AGE"); v != "" {
		fc.MinMessageAge = v
	}
	if v := os.Getenv("TINYIPC_WAIT_TIMEOUT"); v != "" {
		fc.WaitTimeout = v
	}
	if v := os.Getenv("TINYIPC_METRICS_LISTEN"); v != "" {
		fc.MetricsListen = v
	}
}

// Options converts the file configuration to validated bus options.
func (fc FileConfig) Options() (Options, error) {
	o := Options{
		Name:           fc.Name,
		MaxFileSize:    fc.MaxFileSize,
		MaxReaderCount: fc.MaxReaderCount,
	}
	if fc.MinMessageAge != "" {
		d, err := time.ParseDuration(fc.MinMessageAge)
		if err != nil {
			return o, fmt.Errorf("invalid minMessageAge %q: %w", fc.MinMessageAge, err)
		}
		o.MinMessageAge = d
	}
	if fc.WaitTimeout != "" {
		d, err := time.ParseDuration(fc.WaitTimeout)
		if err != nil {
			return o, fmt.Errorf("invalid waitTimeout %q: %w", fc.WaitTimeout, err)
		}
		o.WaitTimeout = d
	}
	o.ApplyDefaults()
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}
