package telemetry

import (
	"regexp"
	"strconv"
	"strings"
)

// Embedded flight-data subtitle streams carry one record per video frame:
//
//	FrameCnt: 142, DiffTime: 33ms
//	2024-05-14 09:31:26.789
//	[iso: 100] [shutter: 1/1000.0] [fnum: 2.8] [ev: 0] [focal_len: 24.00]
//	[latitude: 48.170103] [longitude: 17.210388] [rel_alt: 52.300 abs_alt: 184.512]
//	[gb_yaw: -132.4 gb_pitch: -12.8 gb_roll: 0.0]
//
// FrameCnt gives exact per-frame alignment, which the interpolator prefers
// over timestamps. Camera settings (iso, shutter, fnum, ...) are tolerated
// but not retained.
var (
	frameCntRe = regexp.MustCompile(`FrameCnt\s*:?\s*(\d+)`)
	diffTimeRe = regexp.MustCompile(`DiffTime\s*:?\s*(\d+)\s*ms`)
	bracketRe  = regexp.MustCompile(`\[([^\]]+)\]`)
	pairRe     = regexp.MustCompile(`([a-z_]+)\s*:\s*(-?\d+(?:\.\d+)?)`)
)

// ParseFlightRecord parses an embedded flight-data subtitle dump into
// position samples. Records missing a latitude/longitude pair are skipped.
func ParseFlightRecord(text string) []PositionSample {
	var samples []PositionSample

	text = strings.ReplaceAll(text, "\r\n", "\n")
	recs := splitFrameRecords(text)

	elapsedMS := int64(0)
	for _, rec := range recs {
		fm := frameCntRe.FindStringSubmatch(rec)
		if fm == nil {
			continue
		}
		frameIdx, err := strconv.Atoi(fm[1])
		if err != nil {
			continue
		}

		// DiffTime accumulates into a media-relative offset; records are
		// still usable without it because FrameCnt alignment wins anyway.
		if dm := diffTimeRe.FindStringSubmatch(rec); dm != nil {
			if d, err := strconv.ParseInt(dm[1], 10, 64); err == nil {
				elapsedMS += d
			}
		}

		// A bracket group can carry several pairs ("[rel_alt: .. abs_alt: ..]",
		// "[gb_yaw: .. gb_pitch: .. gb_roll: ..]"), so match groups first and
		// scan every pair inside each one.
		fields := map[string]float64{}
		for _, br := range bracketRe.FindAllStringSubmatch(rec, -1) {
			for _, kv := range pairRe.FindAllStringSubmatch(br[1], -1) {
				v, err := strconv.ParseFloat(kv[2], 64)
				if err != nil {
					continue
				}
				if _, seen := fields[kv[1]]; !seen {
					fields[kv[1]] = v
				}
			}
		}

		lat, okLat := fields["latitude"]
		lon, okLon := fields["longitude"]
		if !okLat || !okLon || (lat == 0 && lon == 0) {
			continue
		}

		sample := PositionSample{
			TimeOffsetMS: elapsedMS,
			FrameIndex:   frameIdx,
			Latitude:     lat,
			Longitude:    lon,
		}

		// Prefer absolute altitude; fall back to altitude above takeoff.
		if abs, ok := fields["abs_alt"]; ok {
			sample.AltitudeM = abs
		} else if rel, ok := fields["rel_alt"]; ok {
			sample.AltitudeM = rel
		}

		if yaw, ok := fields["gb_yaw"]; ok {
			sample.GimbalYawDeg = yaw
			sample.GimbalPitchDeg = fields["gb_pitch"]
			sample.GimbalRollDeg = fields["gb_roll"]
			sample.HasGimbal = true
		}

		samples = append(samples, sample)
	}

	return samples
}

// splitFrameRecords cuts the dump at each FrameCnt header so a record keeps
// all of its bracketed lines regardless of how the subtitle cues were
// separated.
func splitFrameRecords(text string) []string {
	idxs := frameCntRe.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return nil
	}

	recs := make([]string, 0, len(idxs))
	for i, loc := range idxs {
		end := len(text)
		if i+1 < len(idxs) {
			end = idxs[i+1][0]
		}
		recs = append(recs, text[loc[0]:end])
	}
	return recs
}
