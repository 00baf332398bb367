package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Flags binds the command-line surface to a FlagSet. Numeric flags are
// lenient: a malformed or out-of-range value is recorded as a warning and
// the default is used.
type Flags struct {
	fs       *pflag.FlagSet
	warnings []error

	concurrency *uintValue
	duration    *uintValue
	timeout     *uintValue
	warmup      *uintValue
	grace       *uintValue
	port        *uintValue
	output      *outputValue

	configPath string
	host       string
	user       string
	database   string
	sslmode    string
	driver     string
	queryFile  string
	query      string
	rate       float64
	dataFile   string
	dataMode   string
	quiet      bool
	verbose    bool
}

// RegisterFlags defines every flag on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()

	f.concurrency = f.uintFlag("concurrency", "C", "concurrency", DefaultConcurrency, 1, math.MaxInt32,
		"number of concurrent workers, one connection each")
	f.duration = f.uintFlag("duration", "D", "duration", int(DefaultDuration/time.Second), 0, math.MaxInt32,
		"measured duration in seconds (0 = warmup only)")
	f.timeout = f.uintFlag("timeout", "T", "timeout", int(DefaultTimeout/time.Second), 0, math.MaxInt32,
		"per-query timeout in seconds (0 = none)")
	f.warmup = f.uintFlag("warmup-time", "W", "warmup time", int(DefaultWarmup/time.Second), 0, math.MaxInt32,
		"warmup in seconds; results are discarded")
	f.port = f.uintFlag("pgport", "P", "pgport", DefaultPort, 1, 65535,
		"database server port")
	f.grace = f.uintFlag("grace", "", "grace", 0, 0, math.MaxInt32,
		"seconds to wait for in-flight queries after stop (0 = timeout, or 5 without one)")

	f.output = &outputValue{val: d.Output, warn: f.warn}
	fs.VarP(f.output, "output-format", "O", "report format: text or json")

	fs.StringVarP(&f.host, "pghost", "H", d.Host, "database server host")
	fs.StringVarP(&f.user, "pguser", "U", d.User, "database user (password from PGPASSWORD)")
	fs.StringVar(&f.database, "dbname", "", "database name, or file path for sqlite")
	fs.StringVar(&f.sslmode, "sslmode", d.SSLMode, "postgres sslmode")
	fs.StringVarP(&f.driver, "driver", "d", d.Driver, "database driver: postgres or sqlite")
	fs.StringVarP(&f.queryFile, "queryfile", "Q", "", "file containing the query to run")
	fs.StringVarP(&f.query, "query", "q", "", "query to run (wins over --queryfile)")
	fs.Float64VarP(&f.rate, "rate", "R", 0, "global cap in queries/sec (0 = unlimited)")
	fs.StringVar(&f.dataFile, "data", "", "CSV or JSON file with rows for ${data.<column>}")
	fs.StringVar(&f.dataMode, "data-mode", "", "row selection: sequential or random")
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML run file")
	fs.BoolVar(&f.quiet, "quiet", false, "suppress progress output")
	fs.BoolVar(&f.verbose, "verbose", false, "log every query attempt")

	return f
}

func (f *Flags) uintFlag(name, short, label string, def, min, max int, usage string) *uintValue {
	v := &uintValue{label: label, val: def, def: def, min: min, max: max, warn: f.warn}
	f.fs.VarP(v, name, short, usage)
	return v
}

func (f *Flags) warn(err error) { f.warnings = append(f.warnings, err) }

// ConfigPath returns the --config value.
func (f *Flags) ConfigPath() string { return f.configPath }

// Build resolves defaults, the run file and explicitly given flags, in
// that order, then loads the query text and validates. Warnings describe
// substituted defaults; the error is fatal.
func (f *Flags) Build() (Config, []error, error) {
	cfg := Default()
	var warnings []error

	if f.configPath != "" {
		file, err := LoadFile(f.configPath)
		if err != nil {
			return cfg, f.warnings, err
		}
		warnings = append(warnings, file.apply(&cfg)...)
	}
	warnings = append(warnings, f.warnings...)

	changed := f.fs.Changed
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency.val
	}
	if changed("duration") {
		cfg.Duration = f.duration.seconds()
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout.seconds()
	}
	if changed("warmup-time") {
		cfg.Warmup = f.warmup.seconds()
	}
	if changed("grace") {
		cfg.Grace = f.grace.seconds()
	}
	if changed("pgport") {
		cfg.Port = f.port.val
	}
	if changed("output-format") {
		cfg.Output = f.output.val
	}
	if changed("pghost") {
		cfg.Host = f.host
	}
	if changed("pguser") {
		cfg.User = f.user
	}
	if changed("dbname") {
		cfg.Database = f.database
	}
	if changed("sslmode") {
		cfg.SSLMode = f.sslmode
	}
	if changed("driver") {
		cfg.Driver = f.driver
	}
	if changed("queryfile") {
		cfg.QueryFile = f.queryFile
		cfg.Query = ""
	}
	if changed("query") {
		cfg.Query = f.query
	}
	if changed("rate") {
		cfg.Rate = f.rate
	}
	if changed("data") {
		cfg.DataFile = f.dataFile
	}
	if changed("data-mode") {
		cfg.DataMode = f.dataMode
	}
	cfg.Quiet = f.quiet
	cfg.Verbose = f.verbose

	if cfg.Query == "" && cfg.QueryFile != "" {
		text, err := os.ReadFile(cfg.QueryFile)
		if err != nil {
			return cfg, warnings, fmt.Errorf("reading query file: %w", err)
		}
		cfg.Query = strings.TrimSpace(string(text))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, warnings, err
	}
	return cfg, warnings, nil
}

// uintValue is a pflag.Value whose Set never fails.
type uintValue struct {
	label    string
	val      int
	def      int
	min, max int
	warn     func(error)
}

func (v *uintValue) Set(s string) error {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	switch {
	case err != nil:
		v.reject(s, err)
	case n < uint64(v.min) || n > uint64(v.max):
		v.reject(s, ErrOutOfRange)
	default:
		v.val = int(n)
	}
	return nil
}

func (v *uintValue) reject(raw string, err error) {
	v.val = v.def
	v.warn(&ParseError{Field: v.label, Value: raw, Default: strconv.Itoa(v.def), Err: err})
}

func (v *uintValue) seconds() time.Duration { return time.Duration(v.val) * time.Second }

func (v *uintValue) String() string { return strconv.Itoa(v.val) }
func (v *uintValue) Type() string   { return "uint" }

// outputValue accepts text or json in any case, falling back to text.
type outputValue struct {
	val  OutputFormat
	warn func(error)
}

func (v *outputValue) Set(s string) error {
	out, err := ParseOutputFormat(s)
	if err != nil {
		v.val = OutputText
		v.warn(&ParseError{Field: "output format", Value: s, Default: OutputText.String(), Err: err})
		return nil
	}
	v.val = out
	return nil
}

func (v *outputValue) String() string { return v.val.String() }
func (v *outputValue) Type() string   { return "format" }
