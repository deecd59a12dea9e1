package geocoding

import (
	"context"
	"errors"
	"time"

	"addressor_backend/internal/addressor"
)

// Outcomes reported to a Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Recorder observes finished reverse geocode calls.
type Recorder interface {
	ObserveGeocode(provider, outcome string, elapsed time.Duration)
}

// Instrumented reports the outcome and latency of every call to next.
type Instrumented struct {
	next     Provider
	recorder Recorder
}

func NewInstrumented(next Provider, recorder Recorder) *Instrumented {
	return &Instrumented{next: next, recorder: recorder}
}

func (i *Instrumented) Name() string {
	return i.next.Name()
}

func (i *Instrumented) ReverseGeocode(ctx context.Context, coord addressor.Coordinate) ([]addressor.GeocodeResult, error) {
	start := time.Now()
	results, err := i.next.ReverseGeocode(ctx, coord)
	if i.recorder != nil {
		i.recorder.ObserveGeocode(i.next.Name(), outcome(results, err), time.Since(start))
	}
	return results, err
}

func outcome(results []addressor.GeocodeResult, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case err != nil:
		return OutcomeError
	case len(results) == 0:
		return OutcomeEmpty
	default:
		return OutcomeOK
	}
}
