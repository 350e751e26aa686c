// Package config loads the daemon configuration from a file and
// STAKEBERRY_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blockberries/stakeberry/ledger"
)

// EnvPrefix prefixes every environment override, e.g.
// STAKEBERRY_GRPC_LISTEN_ADDRESS.
const EnvPrefix = "STAKEBERRY"

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	ChainID   string  `mapstructure:"chain-id" validate:"required"`
	ProgramID string  `mapstructure:"program-id" validate:"required"`
	GRPC      GRPC    `mapstructure:"grpc"`
	Metrics   Metrics `mapstructure:"metrics"`
	Storage   Storage `mapstructure:"storage"`
	Log       Log     `mapstructure:"log"`
}

type GRPC struct {
	ListenAddress string `mapstructure:"listen-address" validate:"required,hostname_port"`
}

// Metrics serves Prometheus metrics on ListenAddress. Empty disables
// the endpoint.
type Metrics struct {
	ListenAddress string `mapstructure:"listen-address" validate:"omitempty,hostname_port"`
}

type Storage struct {
	DataDir    string `mapstructure:"data-dir" validate:"required_unless=InMemory true"`
	InMemory   bool   `mapstructure:"in-memory"`
	SyncWrites bool   `mapstructure:"sync-writes"`
	// GCInterval of zero disables value log garbage collection.
	GCInterval     time.Duration `mapstructure:"gc-interval" validate:"gte=0"`
	GCDiscardRatio float64       `mapstructure:"gc-discard-ratio" validate:"gt=0,lt=1"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ChainID:   "stakeberry-1",
		ProgramID: ledger.DefaultProgramID.String(),
		GRPC:      GRPC{ListenAddress: "127.0.0.1:26658"},
		Metrics:   Metrics{ListenAddress: "127.0.0.1:26660"},
		Storage: Storage{
			DataDir:        "data",
			SyncWrites:     true,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// settings flattens c into viper keys.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"chain-id":                 c.ChainID,
		"program-id":               c.ProgramID,
		"grpc.listen-address":      c.GRPC.ListenAddress,
		"metrics.listen-address":   c.Metrics.ListenAddress,
		"storage.data-dir":         c.Storage.DataDir,
		"storage.in-memory":        c.Storage.InMemory,
		"storage.sync-writes":      c.Storage.SyncWrites,
		"storage.gc-interval":      c.Storage.GCInterval.String(),
		"storage.gc-discard-ratio": c.Storage.GCDiscardRatio,
		"log.level":                c.Log.Level,
		"log.format":               c.Log.Format,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, val := range Default().settings() {
		v.SetDefault(key, val)
	}
	return v
}

// Load reads the configuration at path, applies environment overrides
// and validates the result. An empty path loads defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write stores c at path. The format follows the file extension.
func Write(c *Config, path string) error {
	v := viper.New()
	for key, val := range c.settings() {
		v.Set(key, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and that ProgramID parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.ProgramAddress(); err != nil {
		return fmt.Errorf("%w: program-id: %v", ErrInvalid, err)
	}
	return nil
}

// ProgramAddress parses ProgramID.
func (c *Config) ProgramAddress() (ledger.Address, error) {
	return ledger.ParseAddress(c.ProgramID)
}
