package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"pgbench/internal/collector"
)

// File is the YAML run file. Unset keys leave the defaults in place.
type File struct {
	Concurrency *int           `yaml:"concurrency"`
	Duration    *time.Duration `yaml:"duration"`
	Timeout     *time.Duration `yaml:"timeout"`
	Warmup      *time.Duration `yaml:"warmup"`
	Grace       *time.Duration `yaml:"grace"`
	Output      string         `yaml:"output"`

	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     *int   `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	Query     string  `yaml:"query"`
	QueryFile string  `yaml:"queryfile"`
	Rate      float64 `yaml:"rate"`
	Data      string  `yaml:"data"`
	DataMode  string  `yaml:"data_mode"`

	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`

	dir string
}

// LoadFile reads and parses a YAML run file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	f.dir = filepath.Dir(path)
	return &f, nil
}

// apply copies the keys present in f onto cfg. Out-of-range numbers and
// unknown output formats are reported like malformed flags.
func (f *File) apply(cfg *Config) []error {
	var warnings []error

	if f.Concurrency != nil {
		if *f.Concurrency >= 1 {
			cfg.Concurrency = *f.Concurrency
		} else {
			warnings = append(warnings, &ParseError{
				Field: "concurrency", Value: strconv.Itoa(*f.Concurrency),
				Default: strconv.Itoa(cfg.Concurrency), Err: ErrOutOfRange,
			})
		}
	}
	if f.Port != nil {
		if *f.Port >= 1 && *f.Port <= 65535 {
			cfg.Port = *f.Port
		} else {
			warnings = append(warnings, &ParseError{
				Field: "pgport", Value: strconv.Itoa(*f.Port),
				Default: strconv.Itoa(cfg.Port), Err: ErrOutOfRange,
			})
		}
	}
	if f.Duration != nil {
		cfg.Duration = *f.Duration
	}
	if f.Timeout != nil {
		cfg.Timeout = *f.Timeout
	}
	if f.Warmup != nil {
		cfg.Warmup = *f.Warmup
	}
	if f.Grace != nil {
		cfg.Grace = *f.Grace
	}
	if f.Output != "" {
		out, err := ParseOutputFormat(f.Output)
		if err != nil {
			warnings = append(warnings, &ParseError{
				Field: "output format", Value: f.Output, Default: cfg.Output.String(), Err: ErrUnknownOutput,
			})
		} else {
			cfg.Output = out
		}
	}

	setString(&cfg.Driver, f.Driver)
	setString(&cfg.Host, f.Host)
	setString(&cfg.User, f.User)
	setString(&cfg.Database, f.Database)
	setString(&cfg.SSLMode, f.SSLMode)
	setString(&cfg.Query, f.Query)
	setString(&cfg.QueryFile, f.resolve(f.QueryFile))
	setString(&cfg.DataFile, f.resolve(f.Data))
	setString(&cfg.DataMode, f.DataMode)
	if f.Rate != 0 {
		cfg.Rate = f.Rate
	}
	if f.Thresholds != nil {
		cfg.Thresholds = f.Thresholds
	}
	return warnings
}

// resolve makes paths in the run file relative to the file itself.
func (f *File) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || f.dir == "" {
		return path
	}
	return filepath.Join(f.dir, path)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
