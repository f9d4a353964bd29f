// Package config loads and checks the adapter configuration.
//
// # Sources
//
// Load merges, from lowest to highest precedence: built-in defaults, an
// optional config file (yaml, json or toml, read by viper), a dotenv file,
// ADAPTER_* environment variables and the command-line flags the user set.
// Keys are snake_case; the environment name is the upper-cased key with the
// prefix, e.g. broker_url is ADAPTER_BROKER_URL.
//
//	cfg, err := config.Load(config.LoadOptions{ConfigFile: path, Flags: cmd.Flags()})
//	if err != nil {
//		return err
//	}
//	if err := cfg.Check(); err != nil {
//		return err
//	}
//
// # Check
//
// Check validates ranges and derives the values the adapter runs with:
//
//   - Broker: the broker root URL and API, from the broker URL path
//     (case-insensitive, trailing slash ignored; "/" selects ngsi10).
//   - ParserPath: the deduplicated absolute parser directories followed by
//     the built-in catalog.
//   - Endpoints: UDP bindings, host and port defaulting to the listener's.
//   - Bindings: NATS subject:parser bindings.
//
// Endpoints and bindings that cannot be used are skipped and reported in
// Warnings rather than failing the check.
//
// The checked Config is shared read-only.
package config
