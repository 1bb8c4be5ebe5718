package kv

import (
	"time"
)

// Defaults of Config.
const (
	DefaultLoadBunchSize     = 100
	DefaultMapReduceTimeout  = 4 * time.Minute
	DefaultMaxMigrationSteps = 64
)

// Config configures a Manager.
type Config struct {
	// BucketPrefix namespaces every bucket the manager owns.
	BucketPrefix string `toml:"bucket-prefix" yaml:"bucket-prefix" json:"bucket-prefix"`

	// LoadBunchSize bounds the fetches in flight in LoadMultiple and the size
	// of the bunches of LoadAllBunches.
	LoadBunchSize int `toml:"load-bunch-size" yaml:"load-bunch-size" json:"load-bunch-size"`

	// MapReduceTimeout is sent with every map-reduce job and bounds the wait
	// for its result.
	MapReduceTimeout time.Duration `toml:"mapreduce-timeout" yaml:"mapreduce-timeout" json:"mapreduce-timeout"`

	// MaxMigrationSteps bounds the migration chain of a single load.
	MaxMigrationSteps int `toml:"max-migration-steps" yaml:"max-migration-steps" json:"max-migration-steps"`

	// PurgeRate limits PurgeAll to that many deletes per second. Zero means
	// unlimited.
	PurgeRate float64 `toml:"purge-rate" yaml:"purge-rate" json:"purge-rate"`
}

// NewConfig returns a Config with defaults.
func NewConfig() Config {
	return Config{
		LoadBunchSize:     DefaultLoadBunchSize,
		MapReduceTimeout:  DefaultMapReduceTimeout,
		MaxMigrationSteps: DefaultMaxMigrationSteps,
	}
}

// withDefaults fills in zero values.
func (c Config) withDefaults() Config {
	if c.LoadBunchSize <= 0 {
		c.LoadBunchSize = DefaultLoadBunchSize
	}
	if c.MapReduceTimeout <= 0 {
		c.MapReduceTimeout = DefaultMapReduceTimeout
	}
	if c.MaxMigrationSteps <= 0 {
		c.MaxMigrationSteps = DefaultMaxMigrationSteps
	}
	return c
}
