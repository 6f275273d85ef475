// Package solver builds the pickup-and-delivery routing model and searches
// it: heterogeneous capacities, pairing, compatibility, optional rest
// breaks, ride-group disjunctions, soft time bounds, all under a wall-clock
// budget with a seeded adaptive search.
package solver

import (
	"paraplan/internal/config"
	"paraplan/internal/model"
	"paraplan/internal/normalize"
)

// Model is the fully built routing instance: everything the search needs,
// precomputed per node, per ride and per vehicle.
type Model struct {
	in   *normalize.Instance
	cfg  config.Config
	dist [][]int64
	time [][]int64

	numVehicles int
	numRides    int

	// Per node.
	service     []int64
	windowStart []int64
	windowEnd   []int64

	// Per vehicle. The start/end bounds intersect the vehicle shift with
	// the respective depot's window.
	shiftStart []int64
	shiftEnd   []int64
	startMin   []int64
	startMax   []int64
	endMin     []int64
	endMax     []int64

	seatCap []int64
	wcCap   []int64
	// Initial on-board load from pre-boarded rides.
	seatInit []int64
	wcInit   []int64

	withRest   []bool
	preBoarded []int // vehicle -> ride index or -1

	compatible [][]bool // [ride][vehicle]
	rideSeat   []int64
	rideWC     []int64

	// Groups of rides sharing one ride id: dropped or served together.
	groups    []group
	groupOf   []int // ride -> group
	preForced []int // ride -> vehicle it is pre-boarded on, or -1
}

type group struct {
	id    string
	rides []int
}

// buildModel derives the constraint model from the normalized instance and
// the travel matrices.
func buildModel(in *normalize.Instance, dist, tm [][]int64, cfg config.Config) (*Model, error) {
	n := in.NumNodes()
	if len(dist) != n || len(tm) != n {
		return nil, model.NewError(model.ErrSolverInvalid, "matrix size %dx? does not match %d nodes", len(dist), n)
	}
	for i := 0; i < n; i++ {
		if len(dist[i]) != n || len(tm[i]) != n {
			return nil, model.NewError(model.ErrSolverInvalid, "matrix row %d does not match %d nodes", i, n)
		}
	}

	m := &Model{
		in:          in,
		cfg:         cfg,
		dist:        dist,
		time:        tm,
		numVehicles: len(in.Problem.Vehicles),
		numRides:    len(in.Problem.RideRequests),
	}

	m.buildNodes()
	m.buildVehicles()
	m.buildRides()
	return m, nil
}

func (m *Model) buildNodes() {
	n := m.in.NumNodes()
	m.service = make([]int64, n)
	m.windowStart = make([]int64, n)
	m.windowEnd = make([]int64, n)

	for i := range m.in.Tasks {
		task := &m.in.Tasks[i]
		start, end := task.TimeWindow.Bounds()
		if m.cfg.Skip.TimeDim {
			start, end = 0, model.FullDaySeconds
		}
		m.windowStart[i] = start
		m.windowEnd[i] = end
		m.service[i] = m.serviceTime(task)
	}
}

// serviceTime is the dwell added when departing a node: nothing at depots,
// longer stops for ramp and wheelchair boardings.
func (m *Model) serviceTime(task *normalize.Task) int64 {
	if task.Ride < 0 {
		return 0
	}
	ride := &m.in.Problem.RideRequests[task.Ride]
	for _, c := range ride.Characteristics {
		if c == model.CharacteristicElectricRamp {
			return config.StopTimeElectricRamp
		}
	}
	if ride.WheelchairRequired {
		return config.StopTimeWheelchair
	}
	return config.StopTimeCommon
}

func (m *Model) buildVehicles() {
	v := m.numVehicles
	m.shiftStart = make([]int64, v)
	m.shiftEnd = make([]int64, v)
	m.startMin = make([]int64, v)
	m.startMax = make([]int64, v)
	m.endMin = make([]int64, v)
	m.endMax = make([]int64, v)
	m.seatCap = make([]int64, v)
	m.wcCap = make([]int64, v)
	m.seatInit = make([]int64, v)
	m.wcInit = make([]int64, v)
	m.withRest = make([]bool, v)
	m.preBoarded = make([]int, v)

	for k := 0; k < v; k++ {
		vehicle := &m.in.Problem.Vehicles[k]
		shiftStart, shiftEnd := vehicle.TimeWindow.Bounds()
		m.shiftStart[k] = shiftStart
		m.shiftEnd[k] = shiftEnd

		startNode := m.in.VehicleStarts[k]
		endNode := m.in.VehicleEnds[k]
		// Depot cumuls live in the intersection of the shift window and
		// the depot's own window.
		m.startMin[k] = max64(shiftStart, m.windowStart[startNode])
		m.startMax[k] = min64(shiftEnd, m.windowEnd[startNode])
		m.endMin[k] = max64(shiftStart, m.windowStart[endNode])
		m.endMax[k] = min64(shiftEnd, m.windowEnd[endNode])

		m.seatCap[k] = m.in.SeatCapacities[k]
		m.wcCap[k] = m.in.WheelchairCapacities[k]
		m.withRest[k] = vehicle.WithRest && !m.cfg.Skip.Rest
		m.preBoarded[k] = -1
		if r, ok := m.in.PreBoarded[k]; ok {
			m.preBoarded[k] = r
			ride := &m.in.Problem.RideRequests[r]
			// Passenger occupies space from shift start until delivered.
			m.seatInit[k] = ride.SeatDemand()
			m.wcInit[k] = ride.WheelchairDemand()
		}
	}
}

func (m *Model) buildRides() {
	m.compatible = make([][]bool, m.numRides)
	m.rideSeat = make([]int64, m.numRides)
	m.rideWC = make([]int64, m.numRides)
	m.preForced = make([]int, m.numRides)
	m.groupOf = make([]int, m.numRides)

	groupIndex := map[string]int{}
	for r := 0; r < m.numRides; r++ {
		ride := &m.in.Problem.RideRequests[r]
		m.rideSeat[r] = ride.SeatDemand()
		m.rideWC[r] = ride.WheelchairDemand()
		m.preForced[r] = -1

		m.compatible[r] = make([]bool, m.numVehicles)
		for k := 0; k < m.numVehicles; k++ {
			m.compatible[r][k] = m.cfg.Skip.Compatibility || m.vehicleFits(ride, k)
		}

		gi, ok := groupIndex[ride.ID]
		if !ok {
			gi = len(m.groups)
			groupIndex[ride.ID] = gi
			m.groups = append(m.groups, group{id: ride.ID})
		}
		m.groups[gi].rides = append(m.groups[gi].rides, r)
		m.groupOf[r] = gi
	}

	for k, r := range m.preBoarded {
		if r >= 0 {
			m.preForced[r] = k
		}
	}
}

func (m *Model) vehicleFits(ride *model.RideRequest, k int) bool {
	vehicle := &m.in.Problem.Vehicles[k]
	if ride.WheelchairRequired && m.wcCap[k] == 0 {
		return false
	}
	return vehicle.Supports(ride.Characteristics)
}

// effectiveWindow intersects a node's window with the vehicle shift when
// shift containment is active.
func (m *Model) effectiveWindow(node, k int) (int64, int64) {
	start, end := m.windowStart[node], m.windowEnd[node]
	if !m.cfg.Skip.ShiftContainment {
		start = max64(start, m.shiftStart[k])
		end = min64(end, m.shiftEnd[k])
	}
	return start, end
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
