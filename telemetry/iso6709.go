package telemetry

import (
	"regexp"
	"strconv"
)

// Container format metadata can carry a single static location tag in
// ISO 6709 notation, e.g. "+48.1700+017.2104+132.500/". This is the least
// precise encoding: one fix for the whole recording.
var iso6709Re = regexp.MustCompile(`^([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)(?:([+-]\d+(?:\.\d+)?))?(?:CRS[^/]*)?/?$`)

// ParseISO6709 parses an ISO 6709 location string. The altitude part is
// optional. Returns false when the string doesn't match the notation.
func ParseISO6709(s string) (PositionSample, bool) {
	m := iso6709Re.FindStringSubmatch(s)
	if m == nil {
		return PositionSample{}, false
	}

	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return PositionSample{}, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return PositionSample{}, false
	}

	sample := PositionSample{
		FrameIndex: -1,
		Latitude:   lat,
		Longitude:  lon,
	}
	if m[3] != "" {
		sample.AltitudeM, _ = strconv.ParseFloat(m[3], 64)
	}
	return sample, true
}
