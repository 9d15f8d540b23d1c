package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISO6709(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		lat   float64
		lon   float64
		alt   float64
	}{
		{"lat lon alt", "+48.1700+017.2104+132.500/", true, 48.17, 17.2104, 132.5},
		{"lat lon only", "+48.1700+017.2104/", true, 48.17, 17.2104, 0},
		{"no trailing slash", "+48.1700+017.2104", true, 48.17, 17.2104, 0},
		{"southern western", "-33.8567+151.2152+021.000/", true, -33.8567, 151.2152, 21},
		{"negative altitude", "+25.7617-080.1918-002.300/", true, 25.7617, -80.1918, -2.3},
		{"with CRS suffix", "+48.1700+017.2104+132.500CRSWGS_84/", true, 48.17, 17.2104, 132.5},
		{"garbage", "not a location", false, 0, 0, 0},
		{"empty", "", false, 0, 0, 0},
		{"latitude out of range", "+98.0000+017.2104/", false, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, ok := ParseISO6709(tt.input)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.lat, sample.Latitude)
			assert.Equal(t, tt.lon, sample.Longitude)
			assert.Equal(t, tt.alt, sample.AltitudeM)
			require.Equal(t, -1, sample.FrameIndex)
		})
	}
}
