package drainer

import (
	"time"

	"github.com/acloudysky/s3drain"
)

// Phase names the part of a drain a failure came from.
type Phase string

const (
	PhaseObjects  Phase = "objects"
	PhaseVersions Phase = "versions"
)

// Failure records one entry that could not be deleted, or one listing that
// could not be completed. Phase-level failures carry an empty Key.
type Failure struct {
	Phase     Phase             `json:"phase" yaml:"phase"`
	Key       string            `json:"key" yaml:"key"`
	VersionID string            `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	Code      s3drain.ErrorCode `json:"code,omitempty" yaml:"code,omitempty"`
	Reason    string            `json:"reason" yaml:"reason"`
	Err       error             `json:"-" yaml:"-"`
}

// Fatal reports whether the failure stopped a whole phase rather than a
// single delete.
func (f Failure) Fatal() bool {
	return f.Key == ""
}

// Result is the outcome of one Drain call.
type Result struct {
	Bucket          string        `json:"bucket" yaml:"bucket"`
	ObjectsDeleted  int           `json:"objects_deleted" yaml:"objects_deleted"`
	VersionsDeleted int           `json:"versions_deleted" yaml:"versions_deleted"`
	Failures        []Failure     `json:"failures" yaml:"failures"`
	ObjectPages     int           `json:"object_pages" yaml:"object_pages"`
	VersionPages    int           `json:"version_pages" yaml:"version_pages"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Clean reports whether every listed entry was deleted and both phases ran
// to completion. Only a clean bucket is ready for DeleteBucket.
func (r Result) Clean() bool {
	return len(r.Failures) == 0
}

func newFailure(phase Phase, key, versionID string, err error) Failure {
	return Failure{
		Phase:     phase,
		Key:       key,
		VersionID: versionID,
		Code:      s3drain.CodeOf(err),
		Reason:    err.Error(),
		Err:       err,
	}
}
