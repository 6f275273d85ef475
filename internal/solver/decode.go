package solver

import (
	"math"

	"paraplan/internal/model"
	"paraplan/internal/osrm"
)

// Solution reconstruction: walk each vehicle's final sequence and emit the
// typed plan with arrival times, waiting, travel-to-next and rest windows.

func (m *Model) buildSolution(st *state) *model.Solution {
	solution := &model.Solution{
		Routes:       []model.Route{},
		DroppedRides: []string{},
	}

	for k := 0; k < m.numVehicles; k++ {
		s := st.scheds[k]
		if s == nil || len(s.stops) == 0 {
			continue // depot-only routes are not reported
		}
		solution.Routes = append(solution.Routes, m.buildRoute(k, s))
	}

	for g, ok := range st.assigned {
		if !ok {
			solution.DroppedRides = append(solution.DroppedRides, m.groups[g].id)
		}
	}
	return solution
}

func (m *Model) buildRoute(k int, s *schedule) model.Route {
	vehicle := &m.in.Problem.Vehicles[k]
	last := len(s.nodes) - 1

	route := model.Route{
		VehicleID: vehicle.ID,
		Visits:    make([]model.Visit, 0, len(s.nodes)),
	}

	for i, node := range s.nodes {
		task := &m.in.Tasks[node]
		visit := model.Visit{
			Position:       i,
			Address:        task.Address,
			Coordinates:    task.Coordinates,
			Type:           task.Type,
			StopID:         task.StopID,
			ArrivalTime:    model.Seconds(s.arrival[i]),
			WaitingTime:    model.Seconds(s.waiting[i]),
			SolutionWindow: model.Window(s.earliest[i], s.latest[i]),
		}
		if task.Ride >= 0 {
			ride := &m.in.Problem.RideRequests[task.Ride]
			visit.RideID = ride.ID
			visit.UserID = ride.UserID
			visit.RideDirection = string(ride.Direction)
		}
		if i < last {
			visit.TravelTimeToNext = model.Seconds(m.time[node][s.nodes[i+1]])
		}
		route.Visits = append(route.Visits, visit)
	}

	route.Duration = model.Seconds(s.arrival[last] - s.arrival[0])
	route.Distance = kilometers(s.distance)

	startLo, _ := vehicle.DepotStart.TimeWindow.Bounds()
	_, endHi := vehicle.DepotEnd.TimeWindow.Bounds()
	route.TimeWindow = model.Window(startLo, endHi)

	if s.hasRest() {
		route.RestTimeWindow = model.Window(s.restStart, s.restEnd)
	}
	return route
}

// kilometers undoes the integer distance scaling, keeping three decimals.
func kilometers(scaled int64) float64 {
	km := float64(scaled) / float64(osrm.DistanceScale) / 1000
	return math.Round(km*1000) / 1000
}

// allDroppedSolution is the well-formed failure shape: no routes, every
// ride id reported dropped once.
func (m *Model) allDroppedSolution(message string) *model.Solution {
	solution := &model.Solution{
		Routes:       []model.Route{},
		DroppedRides: []string{},
		ErrorMessage: message,
	}
	seen := map[string]bool{}
	for r := range m.in.Problem.RideRequests {
		id := m.in.Problem.RideRequests[r].ID
		if !seen[id] {
			seen[id] = true
			solution.DroppedRides = append(solution.DroppedRides, id)
		}
	}
	return solution
}
