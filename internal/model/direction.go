package model

import (
	"encoding/json"
	"strings"
)

// RideDirection tells whether a ride heads out or back. Serialized
// lowercase; parsing is case-insensitive and preserves unknown values so
// upstream additions pass through untouched.
type RideDirection string

const (
	DirectionGoing  RideDirection = "going"
	DirectionReturn RideDirection = "return"
)

func (d RideDirection) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(string(d)))
}

func (d *RideDirection) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = RideDirection(strings.ToLower(raw))
	return nil
}
