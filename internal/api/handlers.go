package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"paraplan/internal/metrics"
	"paraplan/internal/model"
	"paraplan/internal/normalize"
	"paraplan/internal/solver"
	"paraplan/internal/store"
)

// SolveHandler handles POST /optimization/v1/solve: validate, fetch the
// travel matrices, run the solver, attach route geometries and archive the
// outcome. Upstream failures keep the legacy shape: HTTP 200 with a
// well-formed Solution carrying error_message.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()
	var problem model.Problem
	if err := json.NewDecoder(r.Body).Decode(&problem); err != nil {
		writeProblem(w, http.StatusBadRequest, model.ErrInvalidInput, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateProblem(&problem); err != nil {
		writeProblem(w, http.StatusBadRequest, model.ErrInvalidInput, "Invalid problem", err.Error(), r.URL.Path)
		return
	}

	instance, err := normalize.Normalize(&problem)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, model.KindOf(err), "Invalid problem", err.Error(), r.URL.Path)
		return
	}

	solveID := uuid.New().String()
	s.Broker.Publish(topicSolves, Event{Type: "solve.started", Data: map[string]any{
		"solve_id": solveID,
		"vehicles": len(problem.Vehicles),
		"rides":    len(problem.RideRequests),
	}})

	solution, kind := s.runSolve(r.Context(), instance)
	if kind == model.ErrSolverInvalid {
		metrics.SolveDuration.WithLabelValues("invalid").Observe(time.Since(started).Seconds())
		writeProblem(w, http.StatusInternalServerError, model.ErrSolverInvalid, "Solver failed", solution.ErrorMessage, r.URL.Path)
		return
	}

	outcome := "ok"
	if solution.ErrorMessage != "" {
		outcome = string(kind)
	}
	metrics.SolveDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	metrics.DroppedRides.Add(float64(len(solution.DroppedRides)))

	s.archiveSolve(r.Context(), solveID, started, &problem, solution)
	eventType := "solve.completed"
	if solution.ErrorMessage != "" {
		eventType = "solve.failed"
	}
	data := map[string]any{
		"solve_id":      solveID,
		"routes":        len(solution.Routes),
		"dropped_rides": len(solution.DroppedRides),
	}
	s.Broker.Publish(topicSolves, Event{Type: eventType, Data: data})
	s.Pub.Emit(r.Context(), eventType, data)

	writeJSON(w, http.StatusOK, solution)
}

// runSolve executes matrix fetch, solve and geometry fan-out. It always
// returns a well-formed Solution; kind classifies any failure.
func (s *Server) runSolve(ctx context.Context, instance *normalize.Instance) (*model.Solution, model.ErrorKind) {
	dist, dur, err := s.OSRM.Matrices(ctx, instance.Coordinates)
	if err != nil {
		log.Printf("solve: matrix query failed: %v", err)
		return allDropped(instance, err.Error()), model.KindOf(err)
	}

	solution, err := solver.Solve(ctx, instance, dist, dur, s.Cfg)
	if err != nil {
		log.Printf("solve: model build failed: %v", err)
		return &model.Solution{Routes: []model.Route{}, DroppedRides: []string{}, ErrorMessage: err.Error()}, model.ErrSolverInvalid
	}

	if err := s.attachGeometries(ctx, solution); err != nil {
		log.Printf("solve: route geometry failed: %v", err)
		return allDropped(instance, err.Error()), model.KindOf(err)
	}
	return solution, ""
}

// attachGeometries queries the road geometry of every route in parallel
// under a bounded worker pool. Any single failure fails the whole request.
func (s *Server) attachGeometries(ctx context.Context, solution *model.Solution) error {
	if len(solution.Routes) == 0 {
		return nil
	}
	sem := make(chan struct{}, s.Cfg.GeometryWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range solution.Routes {
		wg.Add(1)
		go func(route *model.Route) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			coords := make([]model.Coordinate, len(route.Visits))
			for j, visit := range route.Visits {
				coords[j] = visit.Coordinates
			}
			geometry, err := s.OSRM.RouteGeometry(ctx, coords)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			route.Geometry = geometry
		}(&solution.Routes[i])
	}
	wg.Wait()
	return firstErr
}

func allDropped(instance *normalize.Instance, message string) *model.Solution {
	solution := &model.Solution{Routes: []model.Route{}, DroppedRides: []string{}, ErrorMessage: message}
	seen := map[string]bool{}
	for _, ride := range instance.Problem.RideRequests {
		if !seen[ride.ID] {
			seen[ride.ID] = true
			solution.DroppedRides = append(solution.DroppedRides, ride.ID)
		}
	}
	return solution
}

func (s *Server) archiveSolve(ctx context.Context, id string, started time.Time, problem *model.Problem, solution *model.Solution) {
	problemJSON, _ := json.Marshal(problem)
	solutionJSON, _ := json.Marshal(solution)
	rec := store.SolveRecord{
		ID:           id,
		CreatedAt:    started.UTC(),
		Vehicles:     len(problem.Vehicles),
		Rides:        len(problem.RideRequests),
		DroppedRides: len(solution.DroppedRides),
		DurationMs:   time.Since(started).Milliseconds(),
		ErrorMessage: solution.ErrorMessage,
		Problem:      problemJSON,
		Solution:     solutionJSON,
	}
	if err := s.Store.SaveSolve(ctx, rec); err != nil {
		log.Printf("solve: archive failed: %v", err)
	}
}

// SolvesHandler handles GET /optimization/v1/solves.
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListSolves(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, model.ErrSolverInvalid, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SolveByIDHandler handles GET /optimization/v1/solves/{id}.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/optimization/v1/solves/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, model.ErrInvalidInput, "Not Found", "missing id", r.URL.Path)
		return
	}
	rec, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, model.ErrInvalidInput, "Solve not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SubscriptionsHandler handles POST/GET /optimization/v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req store.Subscription
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, model.ErrInvalidInput, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, model.ErrInvalidInput, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, model.ErrSolverInvalid, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, model.ErrSolverInvalid, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /optimization/v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/optimization/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeProblem(w, http.StatusNotFound, model.ErrInvalidInput, "Subscription not found", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness, pinging the store when Postgres-backed.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, model.ErrSolverInvalid, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

const topicSolves = "solves"
