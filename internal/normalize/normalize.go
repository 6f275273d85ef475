// Package normalize turns a raw Problem into the densely indexed instance
// the solver operates on: one node per depot and ride endpoint, demand and
// capacity vectors, and the pickup/delivery pairing table.
package normalize

import (
	"paraplan/internal/model"
)

// Task node types.
const (
	TypeDepotStart = "DEPOT_START"
	TypeDepotEnd   = "DEPOT_END"
	TypePickup     = "PICKUP"
	TypeDelivery   = "DELIVERY"
)

// Task is one node of the routing instance. Ride is -1 for depot nodes;
// otherwise it indexes Problem.RideRequests.
type Task struct {
	Type        string
	Coordinates model.Coordinate
	TimeWindow  *model.TimeWindow
	Address     string
	StopID      string
	Index       int
	Ride        int
}

// Pair holds a ride's node indices.
type Pair struct {
	Pickup   int
	Delivery int
}

// Instance is the normalized problem: a value object consumed read-only by
// the matrix adapter and the solver.
type Instance struct {
	Problem *model.Problem

	Tasks       []Task
	Coordinates []model.Coordinate

	SeatDemands       []int64
	WheelchairDemands []int64

	SeatCapacities       []int64
	WheelchairCapacities []int64

	VehicleStarts []int
	VehicleEnds   []int

	RidePairs []Pair

	// PreBoarded maps vehicle index -> ride index for rides already on
	// board at shift start, derived from active_ride_id_pre_boarded.
	PreBoarded map[int]int
}

// NumNodes is 2V + 2R.
func (in *Instance) NumNodes() int { return len(in.Tasks) }

// FirstTaskNode is the first non-depot node index.
func (in *Instance) FirstTaskNode() int { return 2 * len(in.Problem.Vehicles) }

// Normalize validates the problem and assigns every stop a dense node
// index: vehicle k owns nodes 2k (start depot) and 2k+1 (end depot); ride r
// owns 2V+2r (pickup) and 2V+2r+1 (delivery).
func Normalize(problem *model.Problem) (*Instance, error) {
	if problem == nil || len(problem.Vehicles) == 0 {
		return nil, model.NewError(model.ErrInvalidInput, "problem requires at least one vehicle")
	}

	numVehicles := len(problem.Vehicles)
	numRides := len(problem.RideRequests)
	numNodes := 2*numVehicles + 2*numRides

	in := &Instance{
		Problem:              problem,
		Tasks:                make([]Task, 0, numNodes),
		Coordinates:          make([]model.Coordinate, 0, numNodes),
		SeatDemands:          make([]int64, numNodes),
		WheelchairDemands:    make([]int64, numNodes),
		SeatCapacities:       make([]int64, numVehicles),
		WheelchairCapacities: make([]int64, numVehicles),
		VehicleStarts:        make([]int, numVehicles),
		VehicleEnds:          make([]int, numVehicles),
		RidePairs:            make([]Pair, numRides),
		PreBoarded:           map[int]int{},
	}

	rideIndexByID := make(map[string]int, numRides)
	for r := range problem.RideRequests {
		ride := &problem.RideRequests[r]
		if ride.Pickup == nil || ride.Delivery == nil {
			return nil, model.NewError(model.ErrInvalidInput, "ride %s: pickup and delivery are required", ride.ID)
		}
		if !ride.Pickup.TimeWindow.Valid() {
			return nil, model.NewError(model.ErrInvalidInput, "ride %s: pickup time window start > end", ride.ID)
		}
		if !ride.Delivery.TimeWindow.Valid() {
			return nil, model.NewError(model.ErrInvalidInput, "ride %s: delivery time window start > end", ride.ID)
		}
		rideIndexByID[ride.ID] = r
	}

	for k := range problem.Vehicles {
		vehicle := &problem.Vehicles[k]
		if vehicle.DepotStart == nil || vehicle.DepotEnd == nil {
			return nil, model.NewError(model.ErrInvalidInput, "vehicle %s: depot_start and depot_end are required", vehicle.ID)
		}
		if vehicle.SeatCapacity < 0 || vehicle.WheelchairCapacity < 0 {
			return nil, model.NewError(model.ErrInvalidInput, "vehicle %s: negative capacity", vehicle.ID)
		}
		if !vehicle.TimeWindow.Valid() || !vehicle.DepotStart.TimeWindow.Valid() || !vehicle.DepotEnd.TimeWindow.Valid() {
			return nil, model.NewError(model.ErrInvalidInput, "vehicle %s: time window start > end", vehicle.ID)
		}

		in.SeatCapacities[k] = vehicle.SeatCapacity
		in.WheelchairCapacities[k] = vehicle.WheelchairCapacity
		in.VehicleStarts[k] = 2 * k
		in.VehicleEnds[k] = 2*k + 1

		in.appendTask(Task{
			Type:        TypeDepotStart,
			Coordinates: vehicle.DepotStart.Coordinates,
			TimeWindow:  vehicle.DepotStart.TimeWindow,
			Address:     vehicle.DepotStart.Address,
			StopID:      vehicle.DepotStart.ID,
			Ride:        -1,
		})
		in.appendTask(Task{
			Type:        TypeDepotEnd,
			Coordinates: vehicle.DepotEnd.Coordinates,
			TimeWindow:  vehicle.DepotEnd.TimeWindow,
			Address:     vehicle.DepotEnd.Address,
			StopID:      vehicle.DepotEnd.ID,
			Ride:        -1,
		})

		if vehicle.ActiveRideIDPreBoarded != "" {
			r, ok := rideIndexByID[vehicle.ActiveRideIDPreBoarded]
			if !ok {
				return nil, model.NewError(model.ErrInvalidInput,
					"vehicle %s: pre-boarded ride %s not present in ride_requests", vehicle.ID, vehicle.ActiveRideIDPreBoarded)
			}
			in.PreBoarded[k] = r
		}
	}

	for r := range problem.RideRequests {
		ride := &problem.RideRequests[r]
		pickup := in.appendTask(Task{
			Type:        TypePickup,
			Coordinates: ride.Pickup.Coordinates,
			TimeWindow:  ride.Pickup.TimeWindow,
			Address:     ride.Pickup.Address,
			StopID:      ride.Pickup.ID,
			Ride:        r,
		})
		delivery := in.appendTask(Task{
			Type:        TypeDelivery,
			Coordinates: ride.Delivery.Coordinates,
			TimeWindow:  ride.Delivery.TimeWindow,
			Address:     ride.Delivery.Address,
			StopID:      ride.Delivery.ID,
			Ride:        r,
		})
		in.RidePairs[r] = Pair{Pickup: pickup, Delivery: delivery}

		seat := ride.SeatDemand()
		in.SeatDemands[pickup] = seat
		in.SeatDemands[delivery] = -seat
		wheelchair := ride.WheelchairDemand()
		in.WheelchairDemands[pickup] = wheelchair
		in.WheelchairDemands[delivery] = -wheelchair
	}

	return in, nil
}

func (in *Instance) appendTask(t Task) int {
	t.Index = len(in.Tasks)
	in.Tasks = append(in.Tasks, t)
	in.Coordinates = append(in.Coordinates, t.Coordinates)
	return t.Index
}
