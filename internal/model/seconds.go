package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Seconds is a duration or seconds-of-day value serialized as an HH:mm:ss
// clock string ("08:30:00"). End-of-day (86400) serializes as "24:00:00".
type Seconds int64

func (s Seconds) String() string {
	v := int64(s)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, v/3600, v/60%60, v%60)
}

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		// Tolerate plain numeric seconds from older clients.
		var n int64
		if nerr := json.Unmarshal(data, &n); nerr == nil {
			*s = Seconds(n)
			return nil
		}
		return err
	}
	v, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseClock parses an HH:mm:ss string into seconds. Hours may exceed 23 so
// that "24:00:00" round-trips.
func ParseClock(raw string) (Seconds, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("parse clock %q: want HH:mm:ss", raw)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	if m < 0 || m > 59 || sec < 0 || sec > 59 || h < 0 {
		return 0, fmt.Errorf("parse clock %q: out of range", raw)
	}
	return Seconds(h*3600 + m*60 + sec), nil
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
