// Package config loads the configuration of riakctl and of applications
// embedding the persistence manager.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/bolt"
	riakhttp "github.com/riakpersist/riakpersist/http"
	"github.com/riakpersist/riakpersist/kv"
	"github.com/riakpersist/riakpersist/logger"
	"gopkg.in/yaml.v3"
)

// Backends a Config can select.
const (
	BackendHTTP = "http"
	BackendBolt = "bolt"
)

// Config is the root of a configuration file.
type Config struct {
	// Backend selects the store client: "http" or "bolt".
	Backend string `toml:"backend" yaml:"backend" json:"backend"`

	Manager kv.Config       `toml:"manager" yaml:"manager" json:"manager"`
	HTTP    riakhttp.Config `toml:"http" yaml:"http" json:"http"`
	Bolt    bolt.Config     `toml:"bolt" yaml:"bolt" json:"bolt"`
	Logging logger.Config   `toml:"logging" yaml:"logging" json:"logging"`
}

// NewConfig returns a Config with the defaults of every section.
func NewConfig() Config {
	return Config{
		Backend: BackendHTTP,
		Manager: kv.NewConfig(),
		HTTP:    riakhttp.NewConfig(),
		Bolt:    bolt.NewConfig(),
		Logging: logger.NewConfig(),
	}
}

// Load reads the file at path over the defaults. The format is chosen by
// extension: .toml, .yaml, .yml or .json.
func Load(path string) (Config, error) {
	c := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = c.FromTOML(b)
	case ".yaml", ".yml", ".json":
		// Every JSON document is a YAML document; the yaml tags match the
		// json ones and yaml.v3 understands durations.
		err = c.FromYAML(b)
	default:
		return c, &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "config/Load",
			Msg:  fmt.Sprintf("unsupported config file extension %q", ext),
		}
	}
	if err != nil {
		return c, &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "config/Load",
			Msg:  fmt.Sprintf("parsing %s", path),
			Err:  err,
		}
	}
	return c, c.Validate()
}

// FromTOML decodes b over c.
func (c *Config) FromTOML(b []byte) error {
	_, err := toml.Decode(string(b), c)
	return err
}

// FromYAML decodes b over c.
func (c *Config) FromYAML(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate returns an error if any value of c is unusable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if c.HTTP.Host == "" {
			return invalid("http.host is required")
		}
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			return invalid(fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
		}
	case BackendBolt:
		if c.Bolt.Path == "" {
			return invalid("bolt.path is required")
		}
	default:
		return invalid(fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.Manager.LoadBunchSize < 0 {
		return invalid("manager.load-bunch-size must not be negative")
	}
	if c.Manager.PurgeRate < 0 {
		return invalid("manager.purge-rate must not be negative")
	}
	return nil
}

func invalid(msg string) error {
	return &riakpersist.Error{
		Code: riakpersist.EInvalid,
		Op:   "config/Validate",
		Msg:  msg,
	}
}

// Encode writes c as TOML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
