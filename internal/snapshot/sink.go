package snapshot

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
)

// ErrNoSnapshot is returned by Load when a sink holds nothing yet.
var ErrNoSnapshot = errors.New("snapshot: none stored")

// Sink keeps encoded snapshots outside the arena.
type Sink interface {
	Name() string
	Save(ctx context.Context, env Envelope) error
	// Load returns the most recently saved envelope or ErrNoSnapshot.
	Load(ctx context.Context) (Envelope, error)
}

// MultiSink fans Save out to every sink and loads from the first one that has data.
type MultiSink []Sink

// Name implements Sink.
func (m MultiSink) Name() string { return "multi" }

// Save writes env to every sink and aggregates the failures.
func (m MultiSink) Save(ctx context.Context, env Envelope) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Save(ctx, env); err != nil {
			result = multierror.Append(result, &sinkError{sink: s.Name(), err: err})
		}
	}
	return result.ErrorOrNil()
}

// Load returns the newest envelope across sinks. Sinks that fail are skipped
// unless every sink fails.
func (m MultiSink) Load(ctx context.Context) (Envelope, error) {
	var (
		best   Envelope
		found  bool
		result *multierror.Error
	)
	for _, s := range m {
		env, err := s.Load(ctx)
		if errors.Is(err, ErrNoSnapshot) {
			continue
		}
		if err != nil {
			result = multierror.Append(result, &sinkError{sink: s.Name(), err: err})
			continue
		}
		if !found || env.TakenAt.After(best.TakenAt) {
			best, found = env, true
		}
	}
	if found {
		return best, nil
	}
	if err := result.ErrorOrNil(); err != nil {
		return Envelope{}, err
	}
	return Envelope{}, ErrNoSnapshot
}

type sinkError struct {
	sink string
	err  error
}

func (e *sinkError) Error() string { return e.sink + ": " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }
