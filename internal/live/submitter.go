package live

import (
	"context"
	"errors"

	"backend-runtracker/internal/metrics"
	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/tracker"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

const breakerName = "run-store"

// newBreaker guards the run store. Validation failures are the caller's
// fault and do not count towards tripping.
func newBreaker(cfg Config, log zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			var verr *runs.ValidationError
			return err == nil || errors.As(err, &verr)
		},
	}
	metrics.BreakerState.WithLabelValues(breakerName).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[any](settings)
}

// sessionSubmitter persists finished runs of one user through the breaker.
type sessionSubmitter struct {
	m      *Manager
	userID string
}

func (s sessionSubmitter) Submit(ctx context.Context, fin tracker.FinishedRun) error {
	res, err := s.m.breaker.Execute(func() (any, error) {
		return s.m.runs.SaveFinished(ctx, s.userID, fin)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return err
	case err != nil:
		metrics.Submissions.WithLabelValues("failed").Inc()
		return err
	}
	run := res.(runs.Run)
	if !run.Inserted {
		metrics.Submissions.WithLabelValues("duplicate").Inc()
	} else {
		metrics.Submissions.WithLabelValues("ok").Inc()
	}

	// A retry racing the original submission, or resubmitting after a lost
	// reply, gets the stored row back. Follow-up work runs once per client id.
	if s.m.claimSaved(fin.ClientID) {
		s.m.afterSave(ctx, s.userID, run)
	}
	return nil
}
