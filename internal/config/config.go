// Package config parses the gateway's command-line flags. Command-line
// parsing itself is out of scope per spec.md §1 (the gateway treats its
// invocation environment as an external collaborator), so this stays on
// the stdlib flag package rather than pulling in a CLI framework — the
// flag surface is seven values, not worth a dependency.
package config

import (
	"flag"
)

// Config holds the gateway's startup parameters. The first five fields
// match spec.md §6 (including its defaults); LogLevel and Pretty configure
// logging.
type Config struct {
	Bind               string
	Redis              string
	Mongodb            string
	MaxConnections     int
	RateLimiterCredits int
	LogLevel           string
	Pretty             bool
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("lila-ws", flag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.Bind, "bind", "127.0.0.1:9664", "binding address of the websocket server")
	fs.StringVar(&cfg.Redis, "redis", "redis://127.0.0.1/", "uri of the redis server")
	fs.StringVar(&cfg.Mongodb, "mongodb", "mongodb://127.0.0.1/", "uri of the mongodb instance with the security collection")
	fs.IntVar(&cfg.MaxConnections, "max-connections", 40_000, "hard limit for the number of simultaneous websocket connections")
	fs.IntVar(&cfg.RateLimiterCredits, "rate-limiter-credits", 40, "per-ip token bucket capacity, refilled over 10 seconds")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "use a human-readable console log writer instead of json")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
