package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/c360/ngsiadapter/config"
)

// addFlags defines the command-line options. Every option can also be set
// in the config file or through its ADAPTER_* environment variable.
func addFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a yaml, json or toml configuration file")
	fs.StringP("logLevel", "l", config.DefaultLogLevel,
		"Verbosity of log messages (DEBUG, INFO, WARN, ERROR) (env: ADAPTER_LOG_LEVEL)")
	fs.String("logFormat", config.DefaultLogFormat, "Log format: text, json (env: ADAPTER_LOG_FORMAT)")
	fs.StringP("listenHost", "H", config.DefaultListenHost,
		"The hostname or address at which the adapter listens (env: ADAPTER_LISTEN_HOST)")
	fs.IntP("listenPort", "p", config.DefaultListenPort,
		"The port number at which the adapter listens (env: ADAPTER_LISTEN_PORT)")
	fs.StringP("udpEndpoints", "u", "",
		"Optional list of UDP endpoints (host:port:parser) (env: ADAPTER_UDP_ENDPOINTS)")
	fs.StringP("parsersPath", "P", "",
		"Colon-separated list of directories with parser definitions (env: ADAPTER_PARSERS_PATH)")
	fs.StringP("brokerUrl", "b", config.DefaultBrokerURL,
		"The URL of the context broker; its path selects the API (env: ADAPTER_BROKER_URL)")
	fs.IntP("maxRequests", "m", config.DefaultMaxRequests,
		"Maximum number of simultaneous connections to the broker (env: ADAPTER_MAX_REQUESTS)")
	fs.IntP("retries", "r", config.DefaultRetries,
		"Maximum number of retries of a failed broker request (env: ADAPTER_RETRIES)")
	fs.Duration("retryDelay", config.DefaultRetryDelay, "Delay before the first retry (env: ADAPTER_RETRY_DELAY)")
	fs.Duration("requestTimeout", config.DefaultRequestTimeout,
		"Timeout of one broker request (env: ADAPTER_REQUEST_TIMEOUT)")
	fs.Int64("maxBodyBytes", config.DefaultMaxBodyBytes,
		"Maximum accepted size of an HTTP request body (env: ADAPTER_MAX_BODY_BYTES)")
	fs.Int("adminPort", 0, "Port serving /metrics, /health and /parsers, 0 to disable (env: ADAPTER_ADMIN_PORT)")
	fs.String("natsUrl", "", "NATS server URL for bus ingestion (env: ADAPTER_NATS_URL)")
	fs.String("natsSubjects", "",
		"Comma-separated list of NATS bindings (subject:parser) (env: ADAPTER_NATS_SUBJECTS)")
}

// loadConfig loads and checks the configuration selected by the flags
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: path, Flags: fs})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
