package api

import (
	"fmt"

	"paraplan/internal/model"
)

// validateProblem rejects malformed problems before any matrix call.
func validateProblem(p *model.Problem) error {
	if len(p.Vehicles) == 0 {
		return fmt.Errorf("vehicles must be non-empty")
	}
	for i := range p.Vehicles {
		v := &p.Vehicles[i]
		if v.ID == "" {
			return fmt.Errorf("vehicle %d: id is required", i)
		}
		if v.DepotStart == nil || v.DepotEnd == nil {
			return fmt.Errorf("vehicle %s: depot_start and depot_end are required", v.ID)
		}
		if v.SeatCapacity < 0 {
			return fmt.Errorf("vehicle %s: seat_capacity must be >= 0", v.ID)
		}
		if v.WheelchairCapacity < 0 {
			return fmt.Errorf("vehicle %s: wheelchair_capacity must be >= 0", v.ID)
		}
		if !v.TimeWindow.Valid() {
			return fmt.Errorf("vehicle %s: time window start > end", v.ID)
		}
		if !v.DepotStart.TimeWindow.Valid() {
			return fmt.Errorf("vehicle %s: depot_start time window start > end", v.ID)
		}
		if !v.DepotEnd.TimeWindow.Valid() {
			return fmt.Errorf("vehicle %s: depot_end time window start > end", v.ID)
		}
	}
	for i := range p.RideRequests {
		r := &p.RideRequests[i]
		if r.ID == "" {
			return fmt.Errorf("ride %d: id is required", i)
		}
		if r.Pickup == nil || r.Delivery == nil {
			return fmt.Errorf("ride %s: pickup and delivery are required", r.ID)
		}
		if !r.Pickup.TimeWindow.Valid() {
			return fmt.Errorf("ride %s: pickup time window start > end", r.ID)
		}
		if !r.Delivery.TimeWindow.Valid() {
			return fmt.Errorf("ride %s: delivery time window start > end", r.ID)
		}
	}
	return nil
}
