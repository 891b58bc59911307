// Package optimistic coordinates the capture/apply/call/reconcile cycle
// for mutations that update local view state before the backend confirms
// them.
package optimistic

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
)

// Mutation describes one optimistic update. Capture must return a closure
// that restores exactly the state observed at capture time; Apply flips
// the local state to the hoped-for outcome; Call performs the backend
// request; Reconcile (optional) folds the server's authoritative response
// back into local state on success.
type Mutation struct {
	// Entity labels the mutation for logs and counters ("like",
	// "follow", ...).
	Entity string

	Capture   func() (restore func())
	Apply     func()
	Call      func(ctx context.Context) error
	Reconcile func()
}

var log = logger.New("optimistic")

// Do runs the cycle. On failure the captured snapshot is restored
// verbatim and the backend error is returned for surfacing. Overlapping
// mutations on the same entity are not queued: the last local intent
// wins, and a rollback restores the state captured by THIS mutation, not
// some merged history.
func Do(ctx context.Context, m Mutation) error {
	restore := m.Capture()
	m.Apply()
	metrics.OptimisticMutations.WithLabelValues(m.Entity).Inc()

	if err := m.Call(ctx); err != nil {
		restore()
		metrics.IncrementRollbacks(m.Entity)
		log.Debug("mutation rolled back",
			zap.String("entity", m.Entity),
			zap.String("error_type", string(apperrors.TypeOf(err))),
		)
		return err
	}

	if m.Reconcile != nil {
		m.Reconcile()
	}
	return nil
}
