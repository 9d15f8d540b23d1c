package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightRecordBlob = `1
00:00:00,000 --> 00:00:00,033
FrameCnt: 1, DiffTime: 33ms
2024-05-14 09:31:26.789
[iso: 100] [shutter: 1/1000.0] [fnum: 2.8] [ev: 0] [focal_len: 24.00]
[latitude: 48.170103] [longitude: 17.210388] [rel_alt: 52.300 abs_alt: 184.512]
[gb_yaw: -132.4 gb_pitch: -12.8 gb_roll: 0.0]

2
00:00:00,033 --> 00:00:00,066
FrameCnt: 2, DiffTime: 33ms
2024-05-14 09:31:26.822
[iso: 100] [shutter: 1/1000.0] [fnum: 2.8] [ev: 0] [focal_len: 24.00]
[latitude: 48.170110] [longitude: 17.210395] [rel_alt: 52.310 abs_alt: 184.520]
[gb_yaw: -132.5 gb_pitch: -12.9 gb_roll: 0.1]

3
00:00:00,066 --> 00:00:00,100
FrameCnt: 3, DiffTime: 34ms
2024-05-14 09:31:26.856
[iso: 100] [shutter: 1/1000.0]
[latitude: 0.000000] [longitude: 0.000000] [rel_alt: 0.0 abs_alt: 0.0]
`

func TestParseFlightRecord(t *testing.T) {
	samples := ParseFlightRecord(flightRecordBlob)
	require.Len(t, samples, 2) // the zero-fix record is dropped

	assert.Equal(t, 1, samples[0].FrameIndex)
	assert.Equal(t, 48.170103, samples[0].Latitude)
	assert.Equal(t, 17.210388, samples[0].Longitude)
	// Absolute altitude preferred over takeoff-relative.
	assert.Equal(t, 184.512, samples[0].AltitudeM)
	require.True(t, samples[0].HasGimbal)
	assert.Equal(t, -132.4, samples[0].GimbalYawDeg)
	assert.Equal(t, -12.8, samples[0].GimbalPitchDeg)
	assert.Equal(t, 0.0, samples[0].GimbalRollDeg)

	assert.Equal(t, 2, samples[1].FrameIndex)
	// DiffTime accumulates into a media-relative offset.
	assert.Greater(t, samples[1].TimeOffsetMS, samples[0].TimeOffsetMS)
}

func TestParseFlightRecordRelAltFallback(t *testing.T) {
	blob := `FrameCnt: 10, DiffTime: 33ms
[latitude: 48.1701] [longitude: 17.2103] [rel_alt: 40.500]
`
	samples := ParseFlightRecord(blob)
	require.Len(t, samples, 1)
	assert.Equal(t, 40.5, samples[0].AltitudeM)
	assert.False(t, samples[0].HasGimbal)
}

func TestParseFlightRecordEmpty(t *testing.T) {
	assert.Empty(t, ParseFlightRecord(""))
	assert.Empty(t, ParseFlightRecord("1\n00:00:00,000 --> 00:00:01,000\nplain caption text\n"))
}

func TestParseFlightRecordSingleLineRecords(t *testing.T) {
	// Some muxers collapse each record onto one line.
	blob := `FrameCnt: 5, DiffTime: 33ms [latitude: 48.17] [longitude: 17.21] [rel_alt: 10.0 abs_alt: 142.0] FrameCnt: 6, DiffTime: 33ms [latitude: 48.18] [longitude: 17.22] [rel_alt: 10.1 abs_alt: 142.1]`
	samples := ParseFlightRecord(blob)
	require.Len(t, samples, 2)
	assert.Equal(t, 5, samples[0].FrameIndex)
	assert.Equal(t, 6, samples[1].FrameIndex)
	assert.Equal(t, 142.1, samples[1].AltitudeM)
}
