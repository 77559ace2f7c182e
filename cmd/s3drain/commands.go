package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/acloudysky/s3drain/drainer"
	"github.com/acloudysky/s3drain/services"
)

const defaultPresignExpiry = 15 * time.Minute

func args(c *cli.Context, names ...string) ([]string, error) {
	if c.NArg() != len(names) {
		return nil, cli.Exit(fmt.Sprintf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage), 1)
	}
	return c.Args().Slice(), nil
}

func (a *app) createBucket(c *cli.Context) error {
	argv, err := args(c, "BUCKET")
	if err != nil {
		return err
	}

	config := &services.BucketConfig{Name: argv[0], Region: a.cfg.Region}
	if c.Bool("versioning") {
		versioning := true
		config.Versioning = &versioning
	}
	if err := a.client.Storage().CreateBucket(c.Context, config); err != nil {
		return err
	}
	a.log.Info().Str("bucket", argv[0]).Bool("versioning", c.Bool("versioning")).Msg("bucket created")
	return nil
}

func (a *app) listBuckets(c *cli.Context) error {
	buckets, err := a.client.Storage().ListBuckets(c.Context)
	if err != nil {
		return err
	}
	return a.render(bucketList(buckets))
}

// newDrainer applies the command's drain flags over the loaded config and
// validates the result.
func (a *app) newDrainer(c *cli.Context) (*drainer.Drainer, error) {
	d := a.cfg.Drain
	if c.IsSet("concurrency") {
		d.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("max-pages") {
		d.MaxPages = c.Int("max-pages")
	}
	if c.IsSet("page-size") {
		d.PageSize = c.Int("page-size")
	}
	if c.IsSet("prefix") {
		d.Prefix = c.String("prefix")
	}

	merged := *a.cfg
	merged.Drain = d
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return drainer.New(
		drainer.WithConcurrency(d.Concurrency),
		drainer.WithMaxPages(d.MaxPages),
		drainer.WithPageSize(d.PageSize),
		drainer.WithPrefix(d.Prefix),
		drainer.WithLogger(a.log),
	), nil
}

func (a *app) drain(c *cli.Context) error {
	argv, err := args(c, "BUCKET")
	if err != nil {
		return err
	}

	d, err := a.newDrainer(c)
	if err != nil {
		return err
	}
	result := d.Drain(c.Context, a.client.Storage(), argv[0])
	if err := a.render(drainReport(result)); err != nil {
		return err
	}
	if !result.Clean() {
		return cli.Exit(fmt.Sprintf("drain of %s left %d failures", argv[0], len(result.Failures)), exitIncomplete)
	}
	return nil
}

func (a *app) deleteBucket(c *cli.Context) error {
	argv, err := args(c, "BUCKET")
	if err != nil {
		return err
	}
	bucket := argv[0]

	if !c.Bool("force") {
		if err := a.client.Storage().DeleteBucket(c.Context, bucket); err != nil {
			return err
		}
		a.log.Info().Str("bucket", bucket).Msg("bucket deleted")
		return nil
	}

	d, err := a.newDrainer(c)
	if err != nil {
		return err
	}
	result, err := d.DrainAndDelete(c.Context, a.client.Storage(), bucket)
	if renderErr := a.render(drainReport(result)); renderErr != nil {
		return renderErr
	}
	if err != nil {
		return cli.Exit(err.Error(), exitIncomplete)
	}
	return nil
}

func (a *app) putObject(c *cli.Context) error {
	argv, err := args(c, "BUCKET", "KEY", "FILE")
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if argv[2] != "-" {
		f, err := os.Open(argv[2])
		if err != nil {
			return fmt.Errorf("open %s: %w", argv[2], err)
		}
		defer f.Close()
		in = f
	}
	return a.client.Storage().PutObject(c.Context, argv[0], argv[1], in)
}

func (a *app) getObject(c *cli.Context) error {
	argv, err := args(c, "BUCKET", "KEY", "FILE")
	if err != nil {
		return err
	}

	body, err := a.client.Storage().GetObject(c.Context, argv[0], argv[1])
	if err != nil {
		return err
	}
	defer body.Close()

	out := a.out
	if argv[2] != "-" {
		f, err := os.Create(argv[2])
		if err != nil {
			return fmt.Errorf("create %s: %w", argv[2], err)
		}
		defer f.Close()
		out = f
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("download %s/%s: %w", argv[0], argv[1], err)
	}
	return nil
}

func (a *app) listObjects(c *cli.Context) error {
	argv, err := args(c, "BUCKET")
	if err != nil {
		return err
	}
	bucket := argv[0]
	opts := services.ListOptions{Prefix: c.String("prefix")}

	if c.Bool("versions") {
		var versions versionList
		for {
			page, err := a.client.Storage().ListObjectVersions(c.Context, bucket, opts)
			if err != nil {
				return err
			}
			versions = append(versions, page.Versions...)
			if !page.IsTruncated || page.NextToken == "" {
				break
			}
			opts.ContinuationToken = page.NextToken
		}
		return a.render(versions)
	}

	var objects objectList
	for {
		page, err := a.client.Storage().ListObjects(c.Context, bucket, opts)
		if err != nil {
			return err
		}
		objects = append(objects, page.Objects...)
		if !page.IsTruncated || page.NextToken == "" {
			break
		}
		opts.ContinuationToken = page.NextToken
	}
	return a.render(objects)
}

func (a *app) deleteObject(c *cli.Context) error {
	argv, err := args(c, "BUCKET", "KEY")
	if err != nil {
		return err
	}

	if id := c.String("version-id"); id != "" {
		return a.client.Storage().DeleteObjectVersion(c.Context, argv[0], argv[1], id)
	}
	return a.client.Storage().DeleteObject(c.Context, argv[0], argv[1])
}

func (a *app) presign(c *cli.Context) error {
	argv, err := args(c, "BUCKET", "KEY")
	if err != nil {
		return err
	}

	presigner, err := a.client.Presigner()
	if err != nil {
		return err
	}
	u, err := presigner.PresignGetObject(c.Context, argv[0], argv[1], c.Duration("expires"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, u)
	return err
}
