package solver

import "paraplan/internal/normalize"

// Route evaluation: time propagation with waiting, schedule compression
// (latest feasible start that keeps the earliest end), capacity and pairing
// checks, and rest-break placement.

type schedule struct {
	stops []int // interior nodes in visit order, depots excluded

	nodes    []int // start depot, stops..., end depot
	arrival  []int64
	earliest []int64
	latest   []int64
	waiting  []int64

	distance int64
	softCost int64

	breakAfter int // nodes position the rest follows, -1 when absent
	restStart  int64
	restEnd    int64
}

func (s *schedule) hasRest() bool { return s.breakAfter >= 0 }

// evaluate builds the schedule for vehicle k serving stops in order.
// Returns nil when the sequence is infeasible.
func (m *Model) evaluate(k int, stops []int) *schedule {
	if !m.checkStatic(k, stops) {
		return nil
	}

	nodes := make([]int, 0, len(stops)+2)
	nodes = append(nodes, m.in.VehicleStarts[k])
	nodes = append(nodes, stops...)
	nodes = append(nodes, m.in.VehicleEnds[k])

	if !m.withRest[k] || len(stops) == 0 {
		return m.schedule(k, nodes, stops, -1)
	}

	// The rest must sit outside every active ride interval, so only
	// boundaries where the vehicle is empty qualify. Try them in order and
	// keep the first feasible placement.
	for _, pos := range m.emptyBoundaries(k, stops) {
		if s := m.schedule(k, nodes, stops, pos); s != nil {
			return s
		}
	}
	return nil
}

// checkStatic verifies capacity prefixes, compatibility and pairing, none
// of which depend on the clock.
func (m *Model) checkStatic(k int, stops []int) bool {
	seat, wc := m.seatInit[k], m.wcInit[k]
	pickedUp := map[int]bool{}

	for _, node := range stops {
		task := &m.in.Tasks[node]
		r := task.Ride
		if r < 0 {
			return false
		}
		if !m.compatible[r][k] && m.preForced[r] != k {
			return false
		}
		switch task.Type {
		case normalize.TypePickup:
			if m.preForced[r] >= 0 {
				return false // pre-boarded rides have no pickup to perform
			}
			pickedUp[r] = true
			seat += m.rideSeat[r]
			wc += m.rideWC[r]
		case normalize.TypeDelivery:
			if !pickedUp[r] && m.preForced[r] != k && !m.cfg.Skip.PickupDelivery {
				return false
			}
			seat -= m.rideSeat[r]
			wc -= m.rideWC[r]
		default:
			return false
		}
		if !m.cfg.Skip.SeatCapacity && seat > m.seatCap[k] {
			return false
		}
		if !m.cfg.Skip.WheelchairCap && wc > m.wcCap[k] {
			return false
		}
	}
	return true
}

// emptyBoundaries lists the positions (index into nodes) after which the
// vehicle carries no passengers.
func (m *Model) emptyBoundaries(k int, stops []int) []int {
	var out []int
	seat, wc := m.seatInit[k], m.wcInit[k]
	if seat == 0 && wc == 0 {
		out = append(out, 0)
	}
	for i, node := range stops {
		task := &m.in.Tasks[node]
		if task.Type == normalize.TypePickup {
			seat += m.rideSeat[task.Ride]
			wc += m.rideWC[task.Ride]
		} else {
			seat -= m.rideSeat[task.Ride]
			wc -= m.rideWC[task.Ride]
		}
		if seat == 0 && wc == 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// propagate computes earliest arrivals for the node sequence given a lower
// bound on the start-depot departure. A rest of RestSeconds is inserted
// after position breakAfter when >= 0. Returns nil on window violation.
func (m *Model) propagate(k int, nodes []int, breakAfter int, t0 int64) ([]int64, int64) {
	arr := make([]int64, len(nodes))
	last := len(nodes) - 1

	start := max64(t0, m.startMin[k])
	if start > m.startMax[k] {
		return nil, 0
	}
	arr[0] = start

	restStart := int64(-1)
	t := start
	for i := 1; i <= last; i++ {
		prev := nodes[i-1]
		t += m.service[prev]
		if i-1 == breakAfter {
			bs := max64(t, arr[0]+m.cfg.RestMinOffset)
			bs = max64(bs, m.shiftStart[k])
			if bs+m.cfg.RestSeconds > m.shiftEnd[k] {
				return nil, 0
			}
			restStart = bs
			t = bs + m.cfg.RestSeconds
		}
		t += m.time[prev][nodes[i]]

		var lo, hi int64
		switch i {
		case last:
			lo, hi = m.endMin[k], m.endMax[k]
		default:
			lo, hi = m.effectiveWindow(nodes[i], k)
		}
		if t < lo {
			t = lo
		}
		if t > hi {
			return nil, 0
		}
		arr[i] = t
	}
	return arr, restStart
}

// schedule runs the full pipeline for a fixed sequence and break position:
// earliest pass, latest pass, compression toward the tightest feasible
// start, then the pairing/rest checks that depend on final times.
func (m *Model) schedule(k int, nodes, stops []int, breakAfter int) *schedule {
	earliest, _ := m.propagate(k, nodes, breakAfter, 0)
	if earliest == nil {
		return nil
	}
	last := len(nodes) - 1

	// Latest feasible arrival per node, bounded by the end-depot window.
	latest := m.latestArrivals(k, nodes, breakAfter)
	if latest == nil {
		return nil
	}

	// Compression: push the start as late as possible without delaying the
	// earliest feasible end (the finalizer behavior: maximize the start
	// cumul, minimize the end cumul).
	arr, restStart := m.compress(k, nodes, breakAfter, earliest)
	if !m.checkTimed(k, nodes, arr, restStart, breakAfter) {
		arr, restStart = earliest, int64(-1)
		if breakAfter >= 0 {
			arr, restStart = m.propagate(k, nodes, breakAfter, 0)
		}
		if arr == nil || !m.checkTimed(k, nodes, arr, restStart, breakAfter) {
			return nil
		}
	}

	s := &schedule{
		stops:      append([]int(nil), stops...),
		nodes:      nodes,
		arrival:    arr,
		earliest:   earliest,
		latest:     latest,
		breakAfter: breakAfter,
	}
	if breakAfter >= 0 {
		s.restStart = restStart
		s.restEnd = restStart + m.cfg.RestSeconds
	}

	s.waiting = make([]int64, len(nodes))
	for i := 1; i <= last; i++ {
		t := arr[i-1] + m.service[nodes[i-1]]
		if i-1 == breakAfter {
			t = s.restEnd
		}
		t += m.time[nodes[i-1]][nodes[i]]
		if arr[i] > t {
			s.waiting[i] = arr[i] - t
		}
	}

	for i := 1; i <= last; i++ {
		s.distance += m.dist[nodes[i-1]][nodes[i]]
	}
	s.softCost = m.softDeliveryCost(nodes, arr)
	return s
}

// latestArrivals is the backward pass: how late each node can be reached
// while the rest of the chain stays feasible.
func (m *Model) latestArrivals(k int, nodes []int, breakAfter int) []int64 {
	last := len(nodes) - 1
	latest := make([]int64, len(nodes))
	latest[last] = m.endMax[k]
	for i := last - 1; i >= 0; i-- {
		var lo, hi int64
		if i == 0 {
			lo, hi = m.startMin[k], m.startMax[k]
		} else {
			lo, hi = m.effectiveWindow(nodes[i], k)
		}
		slack := latest[i+1] - m.time[nodes[i]][nodes[i+1]] - m.service[nodes[i]]
		if i == breakAfter {
			slack -= m.cfg.RestSeconds
		}
		v := min64(hi, slack)
		if v < lo {
			return nil
		}
		latest[i] = v
	}
	return latest
}

// compress binary-searches the largest start bound that keeps the end
// arrival at its earliest value.
func (m *Model) compress(k int, nodes []int, breakAfter int, earliest []int64) ([]int64, int64) {
	last := len(nodes) - 1
	bestArr := earliest
	bestRest := int64(-1)
	if breakAfter >= 0 {
		bestArr, bestRest = m.propagate(k, nodes, breakAfter, 0)
	}

	lo, hi := earliest[0], m.startMax[k]
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		arr, rest := m.propagate(k, nodes, breakAfter, mid)
		if arr != nil && arr[last] == earliest[last] {
			bestArr, bestRest = arr, rest
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return bestArr, bestRest
}

// checkTimed verifies the constraints that need final arrival times: the
// per-ride maximum in-vehicle duration and the rest-window offsets.
func (m *Model) checkTimed(k int, nodes []int, arr []int64, restStart int64, breakAfter int) bool {
	if arr == nil {
		return false
	}
	last := len(nodes) - 1

	if !m.cfg.Skip.MaxRideTime {
		posOf := make(map[int]int, len(nodes))
		for i, node := range nodes {
			posOf[node] = i
		}
		for i := 1; i < last; i++ {
			task := &m.in.Tasks[nodes[i]]
			if task.Type != normalize.TypePickup {
				continue
			}
			pair := m.in.RidePairs[task.Ride]
			if dpos, ok := posOf[pair.Delivery]; ok {
				if arr[dpos]-arr[i] > m.cfg.MaxRideTime {
					return false
				}
			}
		}
	}

	if breakAfter >= 0 {
		restEnd := restStart + m.cfg.RestSeconds
		if restStart < arr[0]+m.cfg.RestMinOffset {
			return false
		}
		if restEnd > arr[last]-m.cfg.RestMinTail {
			return false
		}
	}
	return true
}

func (m *Model) softDeliveryCost(nodes []int, arr []int64) int64 {
	if m.cfg.SoftDeliveryCost <= 0 {
		return 0
	}
	var cost int64
	for i := 1; i < len(nodes)-1; i++ {
		task := &m.in.Tasks[nodes[i]]
		if task.Type != normalize.TypeDelivery {
			continue
		}
		if late := arr[i] - m.windowStart[nodes[i]]; late > 0 {
			cost += late * m.cfg.SoftDeliveryCost
		}
	}
	return cost
}
