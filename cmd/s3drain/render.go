package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/acloudysky/s3drain/drainer"
	"github.com/acloudysky/s3drain/services"
)

// textRenderer is implemented by every value a command prints.
type textRenderer interface {
	writeText(w io.Writer) error
}

func (a *app) render(v textRenderer) error {
	switch a.cfg.Output {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return v.writeText(a.out)
	}
}

type bucketList []string

func (l bucketList) writeText(w io.Writer) error {
	for _, name := range l {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

type objectList []*services.Object

func (l objectList) writeText(w io.Writer) error {
	for _, obj := range l {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified); err != nil {
			return err
		}
	}
	return nil
}

type versionList []*services.ObjectVersion

func (l versionList) writeText(w io.Writer) error {
	for _, v := range l {
		kind := "version"
		if v.IsDeleteMarker {
			kind = "marker"
		}
		latest := ""
		if v.IsLatest {
			latest = "latest"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Key, v.VersionID, kind, latest); err != nil {
			return err
		}
	}
	return nil
}

type drainReport drainer.Result

func (r drainReport) writeText(w io.Writer) error {
	status := "clean"
	if !drainer.Result(r).Clean() {
		status = "incomplete"
	}
	if _, err := fmt.Fprintf(w, "bucket %s: %s\n  objects deleted:  %d (%d pages)\n  versions deleted: %d (%d pages)\n  duration: %s\n",
		r.Bucket, status, r.ObjectsDeleted, r.ObjectPages, r.VersionsDeleted, r.VersionPages, r.Duration); err != nil {
		return err
	}
	for _, f := range r.Failures {
		target := f.Key
		if f.Fatal() {
			target = "(phase)"
		} else if f.VersionID != "" {
			target = f.Key + "@" + f.VersionID
		}
		if _, err := fmt.Fprintf(w, "  failed %s %s [%s]: %s\n", f.Phase, target, f.Code, f.Reason); err != nil {
			return err
		}
	}
	return nil
}
