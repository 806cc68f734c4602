// Package config holds the daemon configuration. Every flag can also be set
// through an environment variable named after it, prefixed with RATINGS_
// (for example --log-level and RATINGS_LOG_LEVEL). Flags given on the command
// line take precedence over the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/log"
	"go.vocdoni.io/dvote/db"
)

// EnvPrefix is the prefix of the environment variables overriding flags.
const EnvPrefix = "RATINGS_"

const (
	// RuntimeBGV runs the lattigo BGV runtime.
	RuntimeBGV = "bgv"
	// RuntimeMock runs the plaintext runtime, for development only.
	RuntimeMock = "mock"
)

// Config is the daemon configuration.
type Config struct {
	Host string
	Port int

	DataDir string
	DBType  string

	LogLevel     string
	LogOutput    string
	LogErrorFile string

	// Admin is the account allowed to manage rounds, members and weights.
	Admin string
	// ContextID is the engine identity towards the confidential runtime.
	ContextID string
	// SignerKey is the hex private key attesting client inputs. A random key
	// is generated when empty.
	SignerKey string
	// Runtime selects the confidential runtime, RuntimeBGV or RuntimeMock.
	Runtime string
	// MaxSubscribers caps the concurrent member event streams.
	MaxSubscribers int
}

// Default returns the default configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Host:      "0.0.0.0",
		Port:      9095,
		DataDir:   filepath.Join(home, ".skillrating"),
		DBType:    db.TypePebble,
		LogLevel:  log.LogLevelInfo,
		LogOutput: "stdout",
		Runtime:   RuntimeBGV,

		MaxSubscribers: engine.DefaultMaxSubscribers,
	}
}

// Load parses args, the command line without the program name, on top of
// the defaults and the environment.
func Load(args []string) (*Config, error) {
	conf := Default()
	fs := flag.NewFlagSet("ratingsd", flag.ContinueOnError)
	fs.StringVar(&conf.Host, "host", conf.Host, "API listen host")
	fs.IntVar(&conf.Port, "port", conf.Port, "API listen port")
	fs.StringVar(&conf.DataDir, "datadir", conf.DataDir, "directory for the database")
	fs.StringVar(&conf.DBType, "db-type", conf.DBType, "database backend")
	fs.StringVar(&conf.LogLevel, "log-level", conf.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&conf.LogOutput, "log-output", conf.LogOutput, "log output (stdout, stderr or a file path)")
	fs.StringVar(&conf.LogErrorFile, "log-error-file", conf.LogErrorFile, "file to copy warnings and errors to")
	fs.StringVar(&conf.Admin, "admin", conf.Admin, "admin account address")
	fs.StringVar(&conf.ContextID, "context-id", conf.ContextID, "engine context address towards the confidential runtime")
	fs.StringVar(&conf.SignerKey, "signer-key", conf.SignerKey, "hex private key attesting client inputs")
	fs.StringVar(&conf.Runtime, "runtime", conf.Runtime, "confidential runtime (bgv or mock)")
	fs.IntVar(&conf.MaxSubscribers, "max-subscribers", conf.MaxSubscribers, "maximum concurrent member event streams")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var envErr error
	fs.VisitAll(func(f *flag.Flag) {
		if f.Changed || envErr != nil {
			return
		}
		if v, ok := os.LookupEnv(EnvName(f.Name)); ok {
			if err := fs.Set(f.Name, v); err != nil {
				envErr = fmt.Errorf("invalid %s: %w", EnvName(f.Name), err)
			}
		}
	})
	if envErr != nil {
		return nil, envErr
	}
	return conf, conf.Validate()
}

// EnvName returns the environment variable overriding a flag.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("invalid admin address %q", c.Admin)
	}
	if c.ContextID != "" && !common.IsHexAddress(c.ContextID) {
		return fmt.Errorf("invalid context id %q", c.ContextID)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxSubscribers <= 0 {
		return fmt.Errorf("invalid max subscribers %d", c.MaxSubscribers)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	switch c.Runtime {
	case RuntimeBGV, RuntimeMock:
	default:
		return fmt.Errorf("unknown runtime %q", c.Runtime)
	}
	switch c.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// AdminAddress returns the parsed admin address.
func (c *Config) AdminAddress() common.Address {
	return common.HexToAddress(c.Admin)
}

// ContextAddress returns the parsed context id, zero when unset.
func (c *Config) ContextAddress() common.Address {
	if c.ContextID == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.ContextID)
}
