package model

// Wire-level domain types for the optimization engine. Field names follow
// the dispatch platform's JSON contract (snake_case, durations as HH:mm:ss
// clock strings).

const (
	// FullDaySeconds bounds every time window.
	FullDaySeconds = 86400

	// CharacteristicElectricRamp marks rides that need the powered ramp
	// deployed at pickup and delivery.
	CharacteristicElectricRamp = "rampa_electrica"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TimeWindow is a [start, end] seconds-of-day interval. A nil *TimeWindow
// means the full day.
type TimeWindow struct {
	Start Seconds `json:"start"`
	End   Seconds `json:"end"`
}

// Bounds returns the window limits, defaulting to the full day when the
// window is absent.
func (w *TimeWindow) Bounds() (int64, int64) {
	if w == nil {
		return 0, FullDaySeconds
	}
	return int64(w.Start), int64(w.End)
}

// Valid reports whether start <= end and both lie in [0, 86400].
func (w *TimeWindow) Valid() bool {
	start, end := w.Bounds()
	return start >= 0 && start <= end && end <= FullDaySeconds
}

// Window builds a *TimeWindow from raw seconds.
func Window(start, end int64) *TimeWindow {
	return &TimeWindow{Start: Seconds(start), End: Seconds(end)}
}

// Depot is a vehicle's start or end location.
type Depot struct {
	ID          string      `json:"id"`
	Coordinates Coordinate  `json:"coordinates"`
	Address     string      `json:"address,omitempty"`
	TimeWindow  *TimeWindow `json:"time_window,omitempty"`
}

// Stop is one endpoint of a ride request.
type Stop struct {
	ID          string      `json:"id,omitempty"`
	Coordinates Coordinate  `json:"coordinates"`
	Address     string      `json:"address,omitempty"`
	TimeWindow  *TimeWindow `json:"time_window,omitempty"`
}

// Vehicle describes one fleet unit and its working shift.
type Vehicle struct {
	ID                       string      `json:"id"`
	SeatCapacity             int64       `json:"seat_capacity"`
	WheelchairCapacity       int64       `json:"wheelchair_capacity"`
	TimeWindow               *TimeWindow `json:"time_window,omitempty"`
	DepotStart               *Depot      `json:"depot_start"`
	DepotEnd                 *Depot      `json:"depot_end"`
	SupportedCharacteristics []string    `json:"supported_characteristics,omitempty"`
	WithRest                 bool        `json:"with_rest,omitempty"`
	ActiveRideIDPreBoarded   string      `json:"active_ride_id_pre_boarded,omitempty"`
}

// vehicleWire carries the legacy capacity spellings still emitted by older
// dispatch clients ("capacity", "wheel_chair_capacity"). The canonical
// fields win when both are present.
type vehicleWire struct {
	ID                       string      `json:"id"`
	SeatCapacity             *float64    `json:"seat_capacity"`
	LegacyCapacity           *float64    `json:"capacity"`
	WheelchairCapacity       *float64    `json:"wheelchair_capacity"`
	LegacyWheelchair         *float64    `json:"wheel_chair_capacity"`
	TimeWindow               *TimeWindow `json:"time_window"`
	DepotStart               *Depot      `json:"depot_start"`
	DepotEnd                 *Depot      `json:"depot_end"`
	SupportedCharacteristics []string    `json:"supported_characteristics"`
	WithRest                 bool        `json:"with_rest"`
	ActiveRideIDPreBoarded   string      `json:"active_ride_id_pre_boarded"`
}

func (v *Vehicle) UnmarshalJSON(data []byte) error {
	var w vehicleWire
	if err := jsonUnmarshal(data, &w); err != nil {
		return err
	}
	v.ID = w.ID
	v.TimeWindow = w.TimeWindow
	v.DepotStart = w.DepotStart
	v.DepotEnd = w.DepotEnd
	v.SupportedCharacteristics = w.SupportedCharacteristics
	v.WithRest = w.WithRest
	v.ActiveRideIDPreBoarded = w.ActiveRideIDPreBoarded
	v.SeatCapacity = pickCapacity(w.SeatCapacity, w.LegacyCapacity)
	v.WheelchairCapacity = pickCapacity(w.WheelchairCapacity, w.LegacyWheelchair)
	return nil
}

func pickCapacity(canonical, legacy *float64) int64 {
	if canonical != nil {
		return int64(*canonical)
	}
	if legacy != nil {
		return int64(*legacy)
	}
	return 0
}

// Supports reports whether every requested characteristic is in the
// vehicle's supported set.
func (v *Vehicle) Supports(characteristics []string) bool {
	if len(characteristics) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(v.SupportedCharacteristics))
	for _, c := range v.SupportedCharacteristics {
		have[c] = struct{}{}
	}
	for _, c := range characteristics {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// RideRequest is one passenger trip: a pickup and a delivery.
type RideRequest struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	HasCompanion       bool          `json:"has_companion"`
	WheelchairRequired bool          `json:"wheelchair_required"`
	Pickup             *Stop         `json:"pickup"`
	Delivery           *Stop         `json:"delivery"`
	Direction          RideDirection `json:"direction,omitempty"`
	Characteristics    []string      `json:"characteristics,omitempty"`
}

// SeatDemand counts the seated (non-wheelchair) occupants the ride adds at
// pickup: the passenger unless travelling in their wheelchair, plus the
// companion.
func (r *RideRequest) SeatDemand() int64 {
	var d int64
	if !r.WheelchairRequired {
		d++
	}
	if r.HasCompanion {
		d++
	}
	return d
}

// WheelchairDemand is 1 for wheelchair rides, 0 otherwise.
func (r *RideRequest) WheelchairDemand() int64 {
	if r.WheelchairRequired {
		return 1
	}
	return 0
}

// Problem is the solve request body.
type Problem struct {
	Vehicles     []Vehicle     `json:"vehicles"`
	RideRequests []RideRequest `json:"ride_requests"`
}

// Visit is one decoded stop on a route.
type Visit struct {
	Position         int         `json:"position"`
	RideID           string      `json:"ride_id,omitempty"`
	UserID           string      `json:"user_id,omitempty"`
	RideDirection    string      `json:"ride_direction,omitempty"`
	Address          string      `json:"address,omitempty"`
	Coordinates      Coordinate  `json:"coordinates"`
	Type             string      `json:"type"`
	StopID           string      `json:"stop_id,omitempty"`
	ArrivalTime      Seconds     `json:"arrival_time"`
	WaitingTime      Seconds     `json:"waiting_time"`
	TravelTimeToNext Seconds     `json:"travel_time_to_next"`
	SolutionWindow   *TimeWindow `json:"solution_window,omitempty"`
}

// Route is one vehicle's decoded schedule. Distance is in km.
type Route struct {
	VehicleID      string      `json:"vehicle_id"`
	Distance       float64     `json:"distance"`
	Duration       Seconds     `json:"duration"`
	Visits         []Visit     `json:"visits"`
	Geometry       [][]float64 `json:"geometry,omitempty"`
	TimeWindow     *TimeWindow `json:"time_window,omitempty"`
	RestTimeWindow *TimeWindow `json:"rest_time_window,omitempty"`
}

// Solution is the solve response body. It is well-formed even when nothing
// could be served.
type Solution struct {
	Routes            []Route            `json:"routes"`
	DroppedRides      []string           `json:"dropped_rides"`
	DepotDroppedRides []DepotDroppedRide `json:"depot_dropped_rides,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
}

// DepotDroppedRide enriches a ride that was short-circuited at a depot
// instead of its original destination.
type DepotDroppedRide struct {
	RideID           string     `json:"ride_id"`
	UserID           string     `json:"user_id,omitempty"`
	VehicleID        string     `json:"vehicle_id,omitempty"`
	DepotID          string     `json:"depot_id,omitempty"`
	DepotCoordinates Coordinate `json:"depot_coordinates"`
	TimeOfDrop       Seconds    `json:"time_of_drop"`
	OriginalAddress  string     `json:"original_address,omitempty"`
}
