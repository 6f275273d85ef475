package solver

import (
	"context"
	"time"

	"paraplan/internal/config"
	"paraplan/internal/model"
	"paraplan/internal/normalize"
)

// Solve builds the routing model for the normalized instance and drives the
// search under the configured wall-clock limit. The returned Solution is
// always well-formed: when nothing is feasible it carries empty routes,
// every ride id in dropped_rides and an error message. A non-nil error
// means the model itself was invalid (an internal bug, surfaced as 500).
func Solve(ctx context.Context, in *normalize.Instance, dist, tm [][]int64, cfg config.Config) (*model.Solution, error) {
	m, err := buildModel(in, dist, tm, cfg)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(cfg.SolveTimeLimit)

	st := newState(m)
	if !m.seed(st) {
		// A pre-boarded delivery could not be scheduled; the hard
		// constraints cannot be met at all.
		return m.allDroppedSolution("solver failed to find a feasible solution: pre-boarded delivery cannot be scheduled"), nil
	}
	st = m.search(ctx, st, deadline, cfg.SolverIterations)

	if cfg.Skip.DropPenalties {
		// Without disjunctions every ride must be served; anything left
		// over means the instance is infeasible under the remaining model.
		for _, ok := range st.assigned {
			if !ok {
				return m.allDroppedSolution("solver failed to find a feasible solution: not all rides can be served"), nil
			}
		}
	}

	return m.buildSolution(st), nil
}
