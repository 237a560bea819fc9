// Package service contains the business logic layer.
package service

import (
	"context"
	"fmt"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/pkg/log"
)

// sagaStep is one step of a multi-system operation. run performs the step;
// compensate undoes it if a later step fails. A nil compensate marks the
// step irreversible: once it has run, a later failure cannot be rolled back
// and becomes an inconsistency for operator reconciliation.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. On failure it walks the completed steps
// in reverse and runs their compensations. If it reaches a completed step
// with no compensation, the systems have diverged: the divergence is logged
// at high severity and reported as apperr.ErrInconsistency, never retried
// automatically.
func runSaga(ctx context.Context, op string, steps []sagaStep) error {
	var done []sagaStep
	for _, step := range steps {
		err := step.run(ctx)
		if err == nil {
			done = append(done, step)
			continue
		}

		for i := len(done) - 1; i >= 0; i-- {
			prev := done[i]
			if prev.compensate == nil {
				log.Errorf("[%s] step %q failed after irreversible step %q; operator reconciliation required: %v",
					op, step.name, prev.name, err)
				return fmt.Errorf("%w: %s: step %s failed after irreversible %s: %v",
					apperr.ErrInconsistency, op, step.name, prev.name, err)
			}
			if cerr := prev.compensate(ctx); cerr != nil {
				log.Errorf("[%s] compensation for step %q failed; operator reconciliation required: %v (original error: %v)",
					op, prev.name, cerr, err)
				return fmt.Errorf("%w: %s: compensation %s failed: %v (original: %v)",
					apperr.ErrInconsistency, op, prev.name, cerr, err)
			}
			log.Warnf("[%s] compensated step %q after failure of %q", op, prev.name, step.name)
		}
		return fmt.Errorf("%s: %s: %w", op, step.name, err)
	}
	return nil
}
