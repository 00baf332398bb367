// Package config builds the immutable run configuration from defaults, an
// optional YAML run file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"pgbench/internal/collector"
)

// Defaults applied before the run file and flags.
const (
	DefaultConcurrency = 10
	DefaultDuration    = 30 * time.Second
	DefaultTimeout     = 2 * time.Second
	DefaultWarmup      = 5 * time.Second
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5432
	DefaultUser        = "postgres"
	DefaultDriver      = "postgres"
	DefaultSSLMode     = "disable"

	// defaultGrace bounds the drain when there is no per-call timeout.
	defaultGrace = 5 * time.Second
)

// OutputFormat selects the report renderer.
type OutputFormat int

const (
	OutputText OutputFormat = iota
	OutputJSON
)

func (o OutputFormat) String() string {
	if o == OutputJSON {
		return "json"
	}
	return "text"
}

// ParseOutputFormat accepts "text" and "json" in any case.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return OutputText, fmt.Errorf("%w %q", ErrUnknownOutput, s)
}

// Config is one run's settings. It is built once and passed by value.
type Config struct {
	Concurrency int
	Duration    time.Duration
	Timeout     time.Duration // 0 disables the per-call timeout
	Warmup      time.Duration
	Grace       time.Duration // 0 derives the drain period from Timeout

	Output  OutputFormat
	Quiet   bool
	Verbose bool

	Driver   string
	Host     string
	Port     int
	User     string
	Database string
	SSLMode  string

	QueryFile string
	Query     string // resolved statement text
	Rate      float64
	DataFile  string
	DataMode  string

	Thresholds *collector.Thresholds
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Concurrency: DefaultConcurrency,
		Duration:    DefaultDuration,
		Timeout:     DefaultTimeout,
		Warmup:      DefaultWarmup,
		Output:      OutputText,
		Driver:      DefaultDriver,
		Host:        DefaultHost,
		Port:        DefaultPort,
		User:        DefaultUser,
		SSLMode:     DefaultSSLMode,
	}
}

// Validate reports settings a run cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", c.Port))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"duration", c.Duration},
		{"timeout", c.Timeout},
		{"warmup", c.Warmup},
		{"grace", c.Grace},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", d.name, d.v))
		}
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %g", c.Rate))
	}
	if c.Duration > 0 && strings.TrimSpace(c.Query) == "" {
		errs = append(errs, ErrEmptyQuery)
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GracePeriod is how long the coordinator waits for workers after stop.
func (c Config) GracePeriod() time.Duration {
	switch {
	case c.Grace > 0:
		return c.Grace
	case c.Timeout > 0:
		return c.Timeout
	}
	return defaultGrace
}

// Addr returns host:port for log lines.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
