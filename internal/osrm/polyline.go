package osrm

// DecodePolyline interprets an encoded polyline5 string: signed varint
// deltas (base 32, offset 63) applied to latitude then longitude
// accumulators in 1e-5 degrees. Output points are (lon, lat) pairs, the
// order route geometries are consumed in downstream.
func DecodePolyline(encoded string) [][]float64 {
	var points [][]float64
	var lat, lng int64
	index := 0

	readDelta := func() (int64, bool) {
		var sum int64
		var shift uint
		for {
			if index >= len(encoded) {
				return 0, false
			}
			chunk := int64(encoded[index]) - 63
			index++
			sum |= (chunk & 0x1f) << shift
			shift += 5
			if chunk < 0x20 {
				break
			}
		}
		if sum&1 == 1 {
			return ^(sum >> 1), true
		}
		return sum >> 1, true
	}

	for index < len(encoded) {
		dLat, ok := readDelta()
		if !ok {
			break
		}
		dLng, ok := readDelta()
		if !ok {
			break
		}
		lat += dLat
		lng += dLng
		points = append(points, []float64{float64(lng) / 1e5, float64(lat) / 1e5})
	}
	return points
}
