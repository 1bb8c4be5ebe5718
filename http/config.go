package http

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config describes how to reach a node's HTTP interface.
type Config struct {
	Scheme       string `toml:"scheme" yaml:"scheme" json:"scheme"`
	Host         string `toml:"host" yaml:"host" json:"host"`
	Port         int    `toml:"port" yaml:"port" json:"port"`
	Prefix       string `toml:"prefix" yaml:"prefix" json:"prefix"`
	MapRedPrefix string `toml:"mapred-prefix" yaml:"mapred-prefix" json:"mapred-prefix"`

	// ClientID is sent as X-Riak-ClientId. A random one is generated when
	// empty.
	ClientID string `toml:"client-id" yaml:"client-id" json:"client-id"`

	// StreamingMapReduce submits map-reduce jobs with chunked=true and
	// decodes the multipart response.
	StreamingMapReduce bool `toml:"streaming-mapreduce" yaml:"streaming-mapreduce" json:"streaming-mapreduce"`

	// ServerVersion skips probing /stats for the node version when set.
	ServerVersion string `toml:"server-version" yaml:"server-version" json:"server-version"`

	Timeout            time.Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
	Username           string        `toml:"username" yaml:"username" json:"username"`
	Password           string        `toml:"password" yaml:"password" json:"password"`
	InsecureSkipVerify bool          `toml:"insecure-skip-verify" yaml:"insecure-skip-verify" json:"insecure-skip-verify"`
}

// NewConfig returns a Config pointing at a local node with its default
// prefixes.
func NewConfig() Config {
	return Config{
		Scheme:             "http",
		Host:               "127.0.0.1",
		Port:               8098,
		Prefix:             "riak",
		MapRedPrefix:       "mapred",
		StreamingMapReduce: true,
	}
}

// Addr returns the base URL of the node.
func (c Config) Addr() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	return u.String()
}
