package solver

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Adaptive search over ride-group assignments: greedy seeding, ruin and
// recreate with simulated-annealing acceptance, all inside the wall-clock
// budget. The rand source is seeded so identical inputs reproduce.

type state struct {
	routes   [][]int
	scheds   []*schedule
	assigned []bool // per group
}

func newState(m *Model) *state {
	return &state{
		routes:   make([][]int, m.numVehicles),
		scheds:   make([]*schedule, m.numVehicles),
		assigned: make([]bool, len(m.groups)),
	}
}

func (st *state) clone() *state {
	out := &state{
		routes:   make([][]int, len(st.routes)),
		scheds:   make([]*schedule, len(st.scheds)),
		assigned: append([]bool(nil), st.assigned...),
	}
	for k := range st.routes {
		out.routes[k] = append([]int(nil), st.routes[k]...)
		out.scheds[k] = st.scheds[k]
	}
	return out
}

// cost is the model objective: arc distance, the global span term on the
// longest route, soft delivery penalties and, for every dropped group, the
// drop penalty once per ride in it.
func (m *Model) cost(st *state) int64 {
	var sum, span, soft, duration int64
	for _, s := range st.scheds {
		if s == nil {
			continue
		}
		sum += s.distance
		if s.distance > span {
			span = s.distance
		}
		soft += s.softCost
		duration += s.arrival[len(s.arrival)-1] - s.arrival[0]
	}
	var cost int64
	if m.cfg.Skip.DistanceDim {
		cost = duration + soft
	} else {
		cost = sum + m.cfg.SpanCost*span + soft
	}
	if !m.cfg.Skip.DropPenalties {
		for g, ok := range st.assigned {
			if !ok {
				cost += m.cfg.DropPenalty * int64(len(m.groups[g].rides))
			}
		}
	}
	return cost
}

// insertRide finds the cheapest feasible joint insertion of a ride's pickup
// and delivery and applies it. Returns false when no vehicle can take it.
func (m *Model) insertRide(st *state, r int) bool {
	if m.cfg.Skip.PickupDelivery {
		pair := m.in.RidePairs[r]
		return m.insertNode(st, r, pair.Pickup) && m.insertNode(st, r, pair.Delivery)
	}

	pair := m.in.RidePairs[r]
	bestK, bestPi, bestDi := -1, 0, 0
	var bestSched *schedule
	bestDelta := int64(math.MaxInt64)
	oldSpan := m.spanExcluding(st, -1)

	for k := 0; k < m.numVehicles; k++ {
		if !m.compatible[r][k] {
			continue
		}
		seq := st.routes[k]
		old := int64(0)
		if st.scheds[k] != nil {
			old = st.scheds[k].distance + st.scheds[k].softCost
		}
		spanRest := m.spanExcluding(st, k)
		for pi := 0; pi <= len(seq); pi++ {
			for di := pi; di <= len(seq); di++ {
				cand := insertPair(seq, pi, pair.Pickup, di, pair.Delivery)
				s := m.evaluate(k, cand)
				if s == nil {
					continue
				}
				// Keep the insertion delta aligned with the objective: the
				// span term steers load toward the emptier vehicles.
				newSpan := max64(spanRest, s.distance)
				delta := s.distance + s.softCost - old + m.cfg.SpanCost*(newSpan-oldSpan)
				if delta < bestDelta {
					bestDelta = delta
					bestK, bestPi, bestDi = k, pi, di
					bestSched = s
				}
			}
		}
	}
	if bestK < 0 {
		return false
	}
	st.routes[bestK] = insertPair(st.routes[bestK], bestPi, pair.Pickup, bestDi, pair.Delivery)
	st.scheds[bestK] = bestSched
	return true
}

// insertNode places a single node at its cheapest feasible position. Only
// used when the pickup-delivery link is being bisected away.
func (m *Model) insertNode(st *state, r, node int) bool {
	bestK, bestPos := -1, 0
	var bestSched *schedule
	bestDelta := int64(math.MaxInt64)
	for k := 0; k < m.numVehicles; k++ {
		if !m.compatible[r][k] {
			continue
		}
		seq := st.routes[k]
		old := int64(0)
		if st.scheds[k] != nil {
			old = st.scheds[k].distance
		}
		for pos := 0; pos <= len(seq); pos++ {
			cand := insertAt(seq, pos, node)
			s := m.evaluate(k, cand)
			if s == nil {
				continue
			}
			if delta := s.distance - old; delta < bestDelta {
				bestDelta = delta
				bestK, bestPos = k, pos
				bestSched = s
			}
		}
	}
	if bestK < 0 {
		return false
	}
	st.routes[bestK] = insertAt(st.routes[bestK], bestPos, node)
	st.scheds[bestK] = bestSched
	return true
}

// insertGroup inserts every ride of a group or none of them.
func (m *Model) insertGroup(st *state, g int) bool {
	saved := st.clone()
	for _, r := range m.groups[g].rides {
		if m.preForced[r] >= 0 {
			continue // already fixed on its vehicle
		}
		if !m.insertRide(st, r) {
			*st = *saved
			return false
		}
	}
	st.assigned[g] = true
	return true
}

// removeGroup takes every node of a group's rides off the routes.
func (m *Model) removeGroup(st *state, g int) {
	drop := map[int]bool{}
	for _, r := range m.groups[g].rides {
		if m.preForced[r] >= 0 {
			continue
		}
		pair := m.in.RidePairs[r]
		drop[pair.Pickup] = true
		drop[pair.Delivery] = true
	}
	if len(drop) == 0 {
		return
	}
	for k := range st.routes {
		changed := false
		kept := st.routes[k][:0:0]
		for _, node := range st.routes[k] {
			if drop[node] {
				changed = true
				continue
			}
			kept = append(kept, node)
		}
		if changed {
			st.routes[k] = kept
			st.scheds[k] = m.evaluate(k, kept)
		}
	}
	st.assigned[g] = false
}

// seed builds the initial assignment: forced pre-boarded deliveries first,
// then groups greedily in input order.
func (m *Model) seed(st *state) bool {
	for k := 0; k < m.numVehicles; k++ {
		r := m.preBoarded[k]
		if r < 0 {
			st.scheds[k] = m.evaluate(k, nil)
			continue
		}
		seq := []int{m.in.RidePairs[r].Delivery}
		s := m.evaluate(k, seq)
		if s == nil {
			return false // hard constraint: the on-board passenger must be delivered
		}
		st.routes[k] = seq
		st.scheds[k] = s
	}
	m.insertUnassigned(st)
	return true
}

// insertUnassigned keeps sweeping the dropped groups until a full pass
// places nothing new; a group may only fit once another one is on board.
func (m *Model) insertUnassigned(st *state) {
	progress := true
	for progress {
		progress = false
		for g := range m.groups {
			if !st.assigned[g] && m.insertGroup(st, g) {
				progress = true
			}
		}
	}
}

// search improves the seed until the deadline: remove a few groups (random
// or geographically related), reinsert everything unassigned greedily, and
// accept by simulated annealing.
func (m *Model) search(ctx context.Context, st *state, deadline time.Time, iterLimit int) *state {
	if len(m.groups) == 0 {
		return st
	}
	rng := rand.New(rand.NewSource(m.cfg.SolverSeed))
	best := st.clone()
	bestCost := m.cost(best)
	curr := st
	currCost := bestCost

	temp := float64(m.cfg.SpanCost * 100)
	const cooling = 0.995

	for iter := 0; ; iter++ {
		if iterLimit > 0 && iter >= iterLimit {
			break
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}

		cand := curr.clone()
		k := 1 + rng.Intn(2)
		var victims []int
		if rng.Intn(2) == 0 {
			victims = m.randomGroups(cand, k, rng)
		} else {
			victims = m.relatedGroups(cand, k, rng)
		}
		for _, g := range victims {
			m.removeGroup(cand, g)
		}
		m.insertUnassigned(cand)

		candCost := m.cost(cand)
		delta := float64(candCost - currCost)
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr, currCost = cand, candCost
			if candCost < bestCost {
				best, bestCost = cand.clone(), candCost
			}
		}
		temp *= cooling
	}
	return best
}

func (m *Model) randomGroups(st *state, k int, rng *rand.Rand) []int {
	var pool []int
	for g, ok := range st.assigned {
		if ok && !m.groupForced(g) {
			pool = append(pool, g)
		}
	}
	var out []int
	for i := 0; i < k && len(pool) > 0; i++ {
		j := rng.Intn(len(pool))
		out = append(out, pool[j])
		pool = append(pool[:j], pool[j+1:]...)
	}
	return out
}

// relatedGroups picks a seed group and its nearest assigned neighbours by
// pickup distance, the shaw-style removal.
func (m *Model) relatedGroups(st *state, k int, rng *rand.Rand) []int {
	var pool []int
	for g, ok := range st.assigned {
		if ok && !m.groupForced(g) {
			pool = append(pool, g)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	seed := pool[rng.Intn(len(pool))]
	seedPickup := m.in.RidePairs[m.groups[seed].rides[0]].Pickup

	type scored struct {
		g    int
		dist int64
	}
	var rel []scored
	for _, g := range pool {
		if g == seed {
			continue
		}
		p := m.in.RidePairs[m.groups[g].rides[0]].Pickup
		rel = append(rel, scored{g: g, dist: m.dist[seedPickup][p]})
	}
	for i := 0; i < len(rel); i++ {
		for j := i + 1; j < len(rel); j++ {
			if rel[j].dist < rel[i].dist {
				rel[i], rel[j] = rel[j], rel[i]
			}
		}
	}
	out := []int{seed}
	for i := 0; i < len(rel) && len(out) < k; i++ {
		out = append(out, rel[i].g)
	}
	return out
}

// groupForced reports whether any ride of the group is pre-boarded; those
// assignments never move.
func (m *Model) groupForced(g int) bool {
	for _, r := range m.groups[g].rides {
		if m.preForced[r] >= 0 {
			return true
		}
	}
	return false
}

// spanExcluding is the largest route distance over all vehicles but k.
func (m *Model) spanExcluding(st *state, k int) int64 {
	var span int64
	for j, s := range st.scheds {
		if j == k || s == nil {
			continue
		}
		if s.distance > span {
			span = s.distance
		}
	}
	return span
}

func insertAt(seq []int, pos, node int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, node)
	out = append(out, seq[pos:]...)
	return out
}

// insertPair puts pickup at pi and delivery right after position di of the
// original sequence, preserving pickup-before-delivery.
func insertPair(seq []int, pi, pickup, di, delivery int) []int {
	out := insertAt(seq, pi, pickup)
	return insertAt(out, di+1, delivery)
}
