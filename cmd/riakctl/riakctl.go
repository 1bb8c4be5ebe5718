package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/bolt"
	"github.com/riakpersist/riakpersist/config"
	riakhttp "github.com/riakpersist/riakpersist/http"
	"github.com/riakpersist/riakpersist/kit/cli"
	"github.com/riakpersist/riakpersist/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// options override the configuration file. Zero values leave it alone.
type options struct {
	configPath   string
	backend      string
	logLevel     string
	host         string
	port         int
	boltPath     string
	bucketPrefix string
	purgeRate    float64
	printMetrics bool
}

// NewCommand returns the riakctl root command with every subcommand.
func NewCommand(ctx context.Context, v *viper.Viper) (*cobra.Command, error) {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "riakctl",
		Short:        "Inspect and maintain the buckets of a riakpersist store",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	v.SetEnvPrefix("RIAKCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts := []cli.Opt{
		{
			DestP:      &o.configPath,
			Flag:       "config",
			Desc:       "path to a TOML, YAML or JSON configuration file",
			Short:      'c',
			Persistent: true,
		},
		{
			DestP:      &o.backend,
			Flag:       "backend",
			Desc:       "store backend, http or bolt",
			Persistent: true,
		},
		{
			DestP:      &o.logLevel,
			Flag:       "log-level",
			Desc:       "supported log levels are debug, info, warn and error",
			Persistent: true,
		},
		{
			DestP:      &o.host,
			Flag:       "host",
			Desc:       "host of the node's HTTP interface",
			Persistent: true,
		},
		{
			DestP:      &o.port,
			Flag:       "port",
			Desc:       "port of the node's HTTP interface",
			Persistent: true,
		},
		{
			DestP:      &o.boltPath,
			Flag:       "bolt-path",
			Desc:       "path of the embedded bolt store",
			Persistent: true,
		},
		{
			DestP:      &o.bucketPrefix,
			Flag:       "bucket-prefix",
			Desc:       "prefix of the buckets owned by the manager",
			Persistent: true,
		},
		{
			DestP:      &o.printMetrics,
			Flag:       "print-metrics",
			Desc:       "print the collected metrics after the command",
			Persistent: true,
		},
	}
	if err := cli.BindOptions(v, cmd, opts); err != nil {
		return nil, err
	}

	purge, err := newPurgeCommand(ctx, v, o)
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(
		newBucketsCommand(ctx, o),
		newKeysCommand(ctx, o),
		newGetCommand(ctx, o),
		newMapRedCommand(ctx, o),
		newPingCommand(ctx, o),
		newConfigCommand(o),
		purge,
	)
	return cmd, nil
}

// loadConfig reads the configuration file, if any, and applies the
// command line overrides.
func (o *options) loadConfig() (config.Config, error) {
	cfg := config.NewConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}

	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.host != "" {
		cfg.HTTP.Host = o.host
	}
	if o.port != 0 {
		cfg.HTTP.Port = o.port
	}
	if o.boltPath != "" {
		cfg.Bolt.Path = o.boltPath
	}
	if o.bucketPrefix != "" {
		cfg.Manager.BucketPrefix = o.bucketPrefix
	}
	if o.purgeRate > 0 {
		cfg.Manager.PurgeRate = o.purgeRate
	}
	if o.logLevel != "" {
		if err := cfg.Logging.Level.Set(o.logLevel); err != nil {
			return cfg, fmt.Errorf("unknown log level %q; supported levels are debug, info, warn, error", o.logLevel)
		}
	}
	return cfg, cfg.Validate()
}

// session is an opened store with its manager.
type session struct {
	config   config.Config
	log      *zap.Logger
	client   riakpersist.StoreClient
	manager  *kv.Manager
	registry *prometheus.Registry
	out      io.Writer
	closeFn  func() error
}

func (o *options) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logging.New(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	s := &session{
		config:   cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		out:      cmd.OutOrStdout(),
		closeFn:  func() error { return nil },
	}

	switch cfg.Backend {
	case config.BackendBolt:
		c := bolt.NewClient(log.With(zap.String("service", "bolt")), cfg.Bolt)
		if err := c.Open(ctx); err != nil {
			return nil, err
		}
		s.registry.MustRegister(c)
		s.client, s.closeFn = c, c.Close
	default:
		c, err := riakhttp.NewClient(log.With(zap.String("service", "http")), cfg.HTTP)
		if err != nil {
			return nil, err
		}
		s.client = c
	}

	s.manager = kv.NewManager(log.With(zap.String("service", "manager")), s.client, cfg.Manager)
	s.registry.MustRegister(s.manager)
	return s, nil
}

// run opens a session, hands it to fn and closes it.
func (o *options) run(ctx context.Context, cmd *cobra.Command, fn func(*session) error) (err error) {
	s, err := o.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.closeFn())
	}()

	if err := fn(s); err != nil {
		return err
	}
	if o.printMetrics {
		return s.writeMetrics()
	}
	return nil
}

func (s *session) writeMetrics() error {
	mfs, err := s.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(s.out, mf); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) writeJSON(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newBucketsCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List the buckets of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(ctx, cmd, func(s *session) error {
				buckets, err := s.client.ListBuckets(ctx)
				if err != nil {
					return err
				}
				sort.Strings(buckets)
				for _, b := range buckets {
					fmt.Fprintln(s.out, b)
				}
				return nil
			})
		},
	}
}

func newKeysCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <bucket>",
		Short: "List the keys of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(ctx, cmd, func(s *session) error {
				keys, err := s.client.ListKeys(ctx, args[0])
				if err != nil {
					return err
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintln(s.out, k)
				}
				return nil
			})
		},
	}
}

// objectView is the printed form of a stored object.
type objectView struct {
	Bucket      string                 `json:"bucket"`
	Key         string                 `json:"key"`
	ContentType string                 `json:"content_type"`
	Version     int                    `json:"version"`
	Indexes     [][2]string            `json:"indexes"`
	Data        map[string]interface{} `json:"data"`
}

func newGetCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <bucket> <key>",
		Short: "Print a stored object as it is persisted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key := args[0], args[1]
			return o.run(ctx, cmd, func(s *session) error {
				result, err := s.client.Fetch(ctx, bucket, key)
				if err != nil {
					return err
				}
				obj, err := riakpersist.DecodeStoredObject(bucket, key, result)
				if err != nil {
					return err
				}
				if !obj.Exists() {
					return &riakpersist.Error{
						Code: riakpersist.ENotFound,
						Op:   "riakctl/get",
						Msg:  fmt.Sprintf("%s/%s not found", bucket, key),
					}
				}
				version, err := obj.Version()
				if err != nil {
					return err
				}

				view := objectView{
					Bucket:      obj.Bucket,
					Key:         obj.Key,
					ContentType: obj.ContentType,
					Version:     version,
					Indexes:     [][2]string{},
					Data:        obj.Data,
				}
				for _, e := range obj.Indexes {
					view.Indexes = append(view.Indexes, [2]string{e.Name, e.Value})
				}
				return s.writeJSON(view)
			})
		},
	}
}

func newMapRedCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mapred <job.json>",
		Short: "Run a map-reduce job read from a file, - for stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job riakpersist.MapReduceJob
			if err := readJob(cmd, args[0], &job); err != nil {
				return err
			}
			return o.run(ctx, cmd, func(s *session) error {
				rows, err := s.manager.RunMapReduce(ctx, &job, nil, nil)
				if err != nil {
					return err
				}
				return s.writeJSON(rows)
			})
		},
	}
}

func readJob(cmd *cobra.Command, path string, job *riakpersist.MapReduceJob) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(job); err != nil {
		return &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "riakctl/mapred",
			Msg:  "invalid map-reduce job",
			Err:  err,
		}
	}
	return nil
}

func newPingCommand(ctx context.Context, o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(ctx, cmd, func(s *session) error {
				if p, ok := s.client.(interface{ Ping(context.Context) error }); ok {
					if err := p.Ping(ctx); err != nil {
						return err
					}
				}
				if v, ok := s.client.(interface {
					ServerVersion(context.Context) (string, error)
				}); ok {
					version, err := v.ServerVersion(ctx)
					if err != nil {
						s.log.Warn("Unable to determine the node version", zap.Error(err))
					} else {
						fmt.Fprintf(s.out, "riak_kv %s\n", version)
					}
				}
				fmt.Fprintln(s.out, "ok")
				return nil
			})
		},
	}
}

func newConfigCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			b, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newPurgeCommand(ctx context.Context, v *viper.Viper, o *options) (*cobra.Command, error) {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every key of every bucket under the bucket prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return &riakpersist.Error{
					Code: riakpersist.EInvalid,
					Op:   "riakctl/purge",
					Msg:  "refusing to purge without --yes",
				}
			}
			return o.run(ctx, cmd, func(s *session) error {
				if err := s.manager.PurgeAll(ctx); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "purged buckets with prefix %q\n", s.config.Manager.BucketPrefix)
				return nil
			})
		},
	}

	opts := []cli.Opt{
		{
			DestP: &yes,
			Flag:  "yes",
			Desc:  "confirm the purge",
			Short: 'y',
		},
		{
			DestP: &o.purgeRate,
			Flag:  "rate",
			Desc:  "deletes per second, 0 uses the configured purge-rate",
		},
	}
	if err := cli.BindOptions(v, cmd, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}
