package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/input/natsin"
	"github.com/c360/ngsiadapter/input/udp"
	"github.com/c360/ngsiadapter/ngsi"
	"github.com/c360/ngsiadapter/parserregistry"
)

// EnvPrefix prefixes every environment override, e.g. ADAPTER_BROKER_URL.
const EnvPrefix = "ADAPTER"

// Defaults
const (
	DefaultLogLevel       = "INFO"
	DefaultLogFormat      = "text"
	DefaultBrokerURL      = "http://127.0.0.1:1026/"
	DefaultListenHost     = "0.0.0.0"
	DefaultListenPort     = 1337
	DefaultMaxRequests    = 5
	DefaultRetries        = 2
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxBodyBytes   = 1 << 20
)

// Config is the adapter configuration. It is loaded and checked once at
// startup and treated as read-only afterwards.
type Config struct {
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	BrokerURL      string        `mapstructure:"broker_url"`
	ListenHost     string        `mapstructure:"listen_host"`
	ListenPort     int           `mapstructure:"listen_port"`
	UDPEndpoints   string        `mapstructure:"udp_endpoints"`
	ParsersPath    string        `mapstructure:"parsers_path"`
	MaxRequests    int           `mapstructure:"max_requests"`
	Retries        int           `mapstructure:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AdminPort      int           `mapstructure:"admin_port"`
	NATSURL        string        `mapstructure:"nats_url"`
	NATSSubjects   string        `mapstructure:"nats_subjects"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`

	// Filled by Check
	Broker     *ngsi.Broker     `mapstructure:"-"`
	ParserPath []string         `mapstructure:"-"`
	Endpoints  []udp.Endpoint   `mapstructure:"-"`
	Bindings   []natsin.Binding `mapstructure:"-"`
	Warnings   []string         `mapstructure:"-"`
}

// Default returns a configuration holding the default values
func Default() *Config {
	return &Config{
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		BrokerURL:      DefaultBrokerURL,
		ListenHost:     DefaultListenHost,
		ListenPort:     DefaultListenPort,
		MaxRequests:    DefaultMaxRequests,
		Retries:        DefaultRetries,
		RetryDelay:     DefaultRetryDelay,
		RequestTimeout: DefaultRequestTimeout,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"logLevel":       "log_level",
	"logFormat":      "log_format",
	"brokerUrl":      "broker_url",
	"listenHost":     "listen_host",
	"listenPort":     "listen_port",
	"udpEndpoints":   "udp_endpoints",
	"parsersPath":    "parsers_path",
	"maxRequests":    "max_requests",
	"retries":        "retries",
	"retryDelay":     "retry_delay",
	"requestTimeout": "request_timeout",
	"adminPort":      "admin_port",
	"natsUrl":        "nats_url",
	"natsSubjects":   "nats_subjects",
	"maxBodyBytes":   "max_body_bytes",
}

// LoadOptions selects the sources Load reads
type LoadOptions struct {
	// ConfigFile is an optional yaml, json or toml file.
	ConfigFile string
	// EnvFile is a dotenv file; missing is not an error. Empty means ".env".
	EnvFile string
	// Flags, when set, override every other source for flags the user changed.
	Flags *pflag.FlagSet
}

// Load builds the configuration from defaults, the config file, the dotenv
// file, ADAPTER_* environment variables and flags, in increasing precedence.
// The result is not checked; call Check before use.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.WrapInvalid(err, "config", "Load", fmt.Sprintf("read env file %s", envFile))
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("read config file %s", opts.ConfigFile))
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.WrapFatal(err, "config", "Load", fmt.Sprintf("bind flag %s", name))
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "decode configuration")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("broker_url", d.BrokerURL)
	v.SetDefault("listen_host", d.ListenHost)
	v.SetDefault("listen_port", d.ListenPort)
	v.SetDefault("udp_endpoints", "")
	v.SetDefault("parsers_path", "")
	v.SetDefault("max_requests", d.MaxRequests)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("admin_port", 0)
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subjects", "")
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
}

// Check validates the configuration and fills the derived fields: the
// broker location and API, the parser search path, the UDP endpoints and
// the NATS bindings. Skipped endpoints and bindings are reported in
// Warnings.
func (c *Config) Check() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return invalid("log format %q must be json or text", c.LogFormat)
	}

	if err := checkPort("listen port", c.ListenPort); err != nil {
		return err
	}
	if err := checkPort("admin port", c.AdminPort); err != nil {
		return err
	}
	if c.MaxRequests < 1 {
		return invalid("max requests must be at least 1, got %d", c.MaxRequests)
	}
	if c.Retries < 0 {
		return invalid("retries must not be negative, got %d", c.Retries)
	}
	if c.RetryDelay < 0 || c.RequestTimeout < 0 {
		return invalid("retry delay and request timeout must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return invalid("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}

	broker, err := ngsi.ParseBrokerURL(c.BrokerURL)
	if err != nil {
		return err
	}
	c.Broker = broker

	path, err := ParserSearchPath(c.ParsersPath)
	if err != nil {
		return err
	}
	c.ParserPath = path

	c.Warnings = nil
	endpoints, warnings := udp.ParseEndpoints(c.UDPEndpoints, c.ListenHost, c.ListenPort)
	c.Endpoints = endpoints
	c.Warnings = append(c.Warnings, warnings...)

	c.Bindings = nil
	if c.NATSSubjects != "" {
		if c.NATSURL == "" {
			return invalid("NATS subjects %q configured without a NATS URL", c.NATSSubjects)
		}
		bindings, warnings := natsin.ParseBindings(c.NATSSubjects)
		c.Bindings = bindings
		c.Warnings = append(c.Warnings, warnings...)
	}

	return nil
}

// ParserSearchPath turns a colon-separated directory list into the ordered,
// deduplicated registry search path, ending with the built-in parsers. Each
// directory is made absolute and must be readable.
func ParserSearchPath(list string) ([]string, error) {
	var (
		path []string
		seen = make(map[string]bool)
	)

	for _, entry := range filepath.SplitList(list) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == parserregistry.BuiltinEntry {
			continue
		}

		abs, err := filepath.Abs(entry)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Check", fmt.Sprintf("parsers path %q", entry))
		}
		if seen[abs] {
			continue
		}
		if _, err := os.ReadDir(abs); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Check", fmt.Sprintf("parsers path %q is not readable", entry))
		}

		seen[abs] = true
		path = append(path, abs)
	}

	return append(path, parserregistry.BuiltinEntry), nil
}

// ParseLogLevel accepts slog level names and their upper-case forms, plus
// WARNING and FATAL (mapped to error), case-insensitively.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "fatal", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalid("unknown log level %q", level)
	}
}

// String renders the effective settings for startup logging
func (c *Config) String() string {
	api := "unchecked"
	if c.Broker != nil {
		api = c.Broker.API.Segment
	}
	return fmt.Sprintf("broker=%s api=%s listen=%s:%d udp=%d nats=%d retries=%d maxRequests=%d",
		c.BrokerURL, api, c.ListenHost, c.ListenPort, len(c.Endpoints), len(c.Bindings), c.Retries, c.MaxRequests)
}

func checkPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return invalid("%s %d out of range", name, port)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"config", "Check", "validation")
}
