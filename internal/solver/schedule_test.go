package solver

import (
	"testing"

	"paraplan/internal/model"
	"paraplan/internal/normalize"
)

func buildTestModel(t *testing.T, problem *model.Problem) *Model {
	t.Helper()
	in, err := normalize.Normalize(problem)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	dist, tm := testMatrices(in)
	m, err := buildModel(in, dist, tm, testConfig())
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	return m
}

func TestServiceStopTimes(t *testing.T) {
	common := testRide("common", 1, 2, nil, nil)
	wheelchair := testRide("wheelchair", 1, 2, nil, nil)
	wheelchair.WheelchairRequired = true
	ramp := testRide("ramp", 1, 2, nil, nil)
	ramp.Characteristics = []string{model.CharacteristicElectricRamp}

	// The vehicle must carry the ramp, or the ramp ride is incompatible.
	vehicle := testVehicle("v1", 4, 1, 86400)
	vehicle.SupportedCharacteristics = []string{model.CharacteristicElectricRamp}

	problem := &model.Problem{
		Vehicles:     []model.Vehicle{vehicle},
		RideRequests: []model.RideRequest{common, wheelchair, ramp},
	}
	m := buildTestModel(t, problem)

	cases := []struct {
		ride int
		want int64
	}{
		{0, 120},
		{1, 300},
		{2, 300},
	}
	for _, tc := range cases {
		pair := m.in.RidePairs[tc.ride]
		if got := m.service[pair.Pickup]; got != tc.want {
			t.Fatalf("ride %d service time: got %d, want %d", tc.ride, got, tc.want)
		}
		s := m.evaluate(0, []int{pair.Pickup, pair.Delivery})
		if s == nil {
			t.Fatalf("ride %d: schedule infeasible", tc.ride)
		}
		// Wide windows compress to zero waiting, so the hop is exactly
		// service + travel (1000 s for one latitude unit).
		if got := s.arrival[2] - s.arrival[1]; got != tc.want+1000 {
			t.Fatalf("ride %d pickup->delivery: got %d, want %d", tc.ride, got, tc.want+1000)
		}
	}
	for _, depot := range []int{0, 1} {
		if m.service[depot] != 0 {
			t.Fatalf("depot %d service time: got %d", depot, m.service[depot])
		}
	}
}

func TestScheduleCompression(t *testing.T) {
	problem := &model.Problem{
		Vehicles: []model.Vehicle{testVehicle("v1", 4, 0, 28800)},
		RideRequests: []model.RideRequest{
			testRide("r1", 0, 1, model.Window(3600, 7200), model.Window(7200, 10800)),
		},
	}
	m := buildTestModel(t, problem)
	pair := m.in.RidePairs[0]
	s := m.evaluate(0, []int{pair.Pickup, pair.Delivery})
	if s == nil {
		t.Fatal("schedule infeasible")
	}

	// The start is pushed as late as the delivery window start allows:
	// 7200 - travel(1000) - service(120) - travel(0) = 6080.
	if s.arrival[0] != 6080 {
		t.Fatalf("compressed start: got %d, want 6080", s.arrival[0])
	}
	for i, w := range s.waiting {
		if w != 0 {
			t.Fatalf("waiting at position %d: got %d", i, w)
		}
	}
	// The end stays at its earliest feasible value.
	earliest, _ := m.propagate(0, s.nodes, -1, 0)
	if s.arrival[len(s.arrival)-1] != earliest[len(earliest)-1] {
		t.Fatal("compression delayed the route end")
	}
	// Solution windows bracket the final arrivals.
	for i := range s.arrival {
		if s.arrival[i] < s.earliest[i] || s.arrival[i] > s.latest[i] {
			t.Fatalf("arrival %d outside [%d, %d] at position %d", s.arrival[i], s.earliest[i], s.latest[i], i)
		}
	}
}

func TestEvaluateCapacityPrefix(t *testing.T) {
	problem := &model.Problem{
		Vehicles: []model.Vehicle{testVehicle("v1", 1, 0, 86400)},
		RideRequests: []model.RideRequest{
			testRide("r1", 1, 3, nil, nil),
			testRide("r2", 1, 3, nil, nil),
		},
	}
	m := buildTestModel(t, problem)
	p1, d1 := m.in.RidePairs[0].Pickup, m.in.RidePairs[0].Delivery
	p2, d2 := m.in.RidePairs[1].Pickup, m.in.RidePairs[1].Delivery

	if s := m.evaluate(0, []int{p1, p2, d1, d2}); s != nil {
		t.Fatal("two passengers on a one-seat vehicle must be infeasible")
	}
	if s := m.evaluate(0, []int{p1, d1, p2, d2}); s == nil {
		t.Fatal("sequential service must be feasible")
	}
}

func TestEvaluateRejectsUnpairedDelivery(t *testing.T) {
	problem := &model.Problem{
		Vehicles:     []model.Vehicle{testVehicle("v1", 4, 0, 86400)},
		RideRequests: []model.RideRequest{testRide("r1", 1, 2, nil, nil)},
	}
	m := buildTestModel(t, problem)
	if s := m.evaluate(0, []int{m.in.RidePairs[0].Delivery}); s != nil {
		t.Fatal("delivery without pickup must be rejected")
	}
}

func TestSoftDeliveryCost(t *testing.T) {
	problem := &model.Problem{
		Vehicles: []model.Vehicle{testVehicle("v1", 4, 0, 86400)},
		RideRequests: []model.RideRequest{
			// Delivery window opens at 0; arriving at t forces t*1000 in
			// soft penalty.
			testRide("r1", 1, 2, model.Window(5000, 5400), model.Window(0, 86400)),
		},
	}
	m := buildTestModel(t, problem)
	pair := m.in.RidePairs[0]
	s := m.evaluate(0, []int{pair.Pickup, pair.Delivery})
	if s == nil {
		t.Fatal("schedule infeasible")
	}
	deliveryArrival := s.arrival[2]
	if want := deliveryArrival * m.cfg.SoftDeliveryCost; s.softCost != want {
		t.Fatalf("soft cost: got %d, want %d", s.softCost, want)
	}
}
