// Package joblog keeps a record of finished batch jobs.
//
// A Recorder stores one Entry per job: what ran, how many items succeeded
// and the structured failure of every item that did not. Two backends are
// available, an embedded SQLite file and a MongoDB collection; Nop discards
// everything and is the default.
package joblog

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/config"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

var (
	// ErrUnknownDriver is returned by Open for an unrecognized driver name.
	ErrUnknownDriver = errors.New("joblog: unknown driver")
	// ErrWriteFailed wraps backend errors raised while recording.
	ErrWriteFailed = errors.New("joblog: write failed")
	// ErrReadFailed wraps backend errors raised while listing.
	ErrReadFailed = errors.New("joblog: read failed")
)

// Entry summarizes one batch job.
type Entry struct {
	JobID      string                 `json:"job_id" bson:"jobId"`
	Operation  string                 `json:"operation" bson:"operation"`
	Params     map[string]interface{} `json:"params,omitempty" bson:"params,omitempty"`
	Total      int                    `json:"total" bson:"total"`
	Succeeded  int                    `json:"succeeded" bson:"succeeded"`
	Failures   []imgerr.Failure       `json:"failures,omitempty" bson:"failures,omitempty"`
	StartedAt  time.Time              `json:"started_at" bson:"startedAt"`
	FinishedAt time.Time              `json:"finished_at" bson:"finishedAt"`
}

// Failed returns the number of failed items.
func (e Entry) Failed() int {
	return len(e.Failures)
}

// Recorder persists job entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close(ctx context.Context) error
}

// Open returns the recorder cfg selects.
func Open(ctx context.Context, cfg config.JobLog) (Recorder, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "mongo":
		return OpenMongo(ctx, cfg.DSN, cfg.Database)
	}
	return nil, errors.Wrapf(ErrUnknownDriver, "%q", cfg.Driver)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (Nop) Close(context.Context) error { return nil }
