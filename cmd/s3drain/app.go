package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/acloudysky/s3drain"
	"github.com/acloudysky/s3drain/config"
	"github.com/acloudysky/s3drain/logger"
	awsprovider "github.com/acloudysky/s3drain/providers/aws"
	minioprovider "github.com/acloudysky/s3drain/providers/minio"
)

// exitIncomplete is returned by drain and delete-bucket --force when entries
// were left behind.
const exitIncomplete = 2

type providerFactory func(ctx context.Context, cfg *config.Config) (s3drain.Provider, error)

// app carries what the Before hook resolves into the commands.
type app struct {
	out         io.Writer
	newProvider providerFactory

	cfg    *config.Config
	log    zerolog.Logger
	client *s3drain.Client
}

func newApp(out io.Writer, newProvider providerFactory) *cli.App {
	a := &app{out: out, newProvider: newProvider}

	return &cli.App{
		Name:  "s3drain",
		Usage: "Empty S3 buckets of objects, versions and delete markers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				EnvVars: []string{"S3DRAIN_CONFIG"},
			},
			&cli.StringFlag{Name: "backend", Usage: "Storage backend: aws or minio"},
			&cli.StringFlag{Name: "region", Usage: "Bucket region"},
			&cli.StringFlag{Name: "endpoint", Usage: "Custom S3 endpoint, e.g. http://localhost:4566"},
			&cli.BoolFlag{Name: "path-style", Usage: "Use path-style bucket addressing"},
			&cli.BoolFlag{Name: "secure", Usage: "Use TLS for the minio backend"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Report format: text, json or yaml"},
		},
		Before:         a.setup,
		ExitErrHandler: func(*cli.Context, error) {},
		Writer:         out,
		ErrWriter:      os.Stderr,
		Commands: []*cli.Command{
			{
				Name:      "create-bucket",
				Usage:     "Create a bucket",
				ArgsUsage: "BUCKET",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "versioning", Usage: "Enable object versioning"},
				},
				Action: a.createBucket,
			},
			{
				Name:   "list-buckets",
				Usage:  "List buckets",
				Action: a.listBuckets,
			},
			{
				Name:      "drain",
				Usage:     "Delete every object, version and delete marker in a bucket",
				ArgsUsage: "BUCKET",
				Flags:     drainFlags(),
				Action:    a.drain,
			},
			{
				Name:      "delete-bucket",
				Usage:     "Delete a bucket",
				ArgsUsage: "BUCKET",
				Flags: append(drainFlags(),
					&cli.BoolFlag{Name: "force", Usage: "Drain the bucket before deleting it"},
				),
				Action: a.deleteBucket,
			},
			{
				Name:      "put-object",
				Usage:     "Upload a file, - for stdin",
				ArgsUsage: "BUCKET KEY FILE",
				Action:    a.putObject,
			},
			{
				Name:      "get-object",
				Usage:     "Download an object to a file, - for stdout",
				ArgsUsage: "BUCKET KEY FILE",
				Action:    a.getObject,
			},
			{
				Name:      "list-objects",
				Usage:     "List objects, or every version with --versions",
				ArgsUsage: "BUCKET",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "versions", Usage: "List versions and delete markers"},
					&cli.StringFlag{Name: "prefix", Usage: "Only list keys with this prefix"},
				},
				Action: a.listObjects,
			},
			{
				Name:      "delete-object",
				Usage:     "Delete an object, or one version of it",
				ArgsUsage: "BUCKET KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "version-id", Usage: "Delete this version permanently"},
				},
				Action: a.deleteObject,
			},
			{
				Name:      "presign",
				Usage:     "Print a presigned GET URL",
				ArgsUsage: "BUCKET KEY",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "expires", Value: defaultPresignExpiry, Usage: "URL lifetime"},
				},
				Action: a.presign,
			},
		},
	}
}

func drainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "concurrency", Usage: "Deletes in flight per page"},
		&cli.IntFlag{Name: "max-pages", Usage: "Listing pages allowed per phase"},
		&cli.IntFlag{Name: "page-size", Usage: "Entries requested per listing page"},
		&cli.StringFlag{Name: "prefix", Usage: "Only drain keys with this prefix"},
	}
}

// setup loads configuration, lets global flags override it and connects to
// the backend.
func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("region") {
		cfg.Region = c.String("region")
	}
	if c.IsSet("endpoint") {
		cfg.Endpoint = c.String("endpoint")
	}
	if c.IsSet("path-style") {
		cfg.PathStyle = c.Bool("path-style")
	}
	if c.IsSet("secure") {
		cfg.Secure = c.Bool("secure")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.New(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)

	provider, err := a.newProvider(c.Context, cfg)
	if err != nil {
		return err
	}
	a.client = s3drain.New(provider)
	a.log.Debug().
		Str("backend", provider.Name()).
		Str("region", provider.Region()).
		Msg("connected")
	return nil
}

func buildProvider(ctx context.Context, cfg *config.Config) (s3drain.Provider, error) {
	switch cfg.Backend {
	case config.BackendMinio:
		return minioprovider.New(minioprovider.Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Secure:    cfg.Secure,
		})
	default:
		return awsprovider.NewAWSProviderWithOptions(ctx, cfg.Region, awsprovider.Options{
			Endpoint:         cfg.Endpoint,
			PathStyle:        cfg.PathStyle,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			AccessKey:        cfg.AccessKey,
			SecretKey:        cfg.SecretKey,
		})
	}
}
