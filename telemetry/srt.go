package telemetry

import (
	"regexp"
	"strconv"
	"strings"
)

// Sidecar subtitle tracks carry one cue per fix. The payload embeds a
// GPS(longitude,latitude,satellites) triplet and optionally a barometric
// altitude, e.g.:
//
//	2
//	00:00:01,000 --> 00:00:02,000
//	2024-05-14 09:31:22,105
//	GPS(17.210412,48.170033,16) BAROMETER:132.4
var (
	srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->`)
	srtGPSRe  = regexp.MustCompile(`GPS\s*\(\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*(?:,\s*(\d+)\s*)?\)`)
	srtBaroRe = regexp.MustCompile(`BAROMETER\s*:\s*(-?\d+(?:\.\d+)?)`)
)

// ParseSRT parses a sidecar subtitle blob into position samples. Cues
// without a GPS triplet are skipped; a cue whose GPS coordinates are both
// zero is treated as a no-fix placeholder and skipped as well.
func ParseSRT(text string) []PositionSample {
	var samples []PositionSample

	// Cue blocks are separated by blank lines. Tolerate \r\n.
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		tm := srtTimeRe.FindStringSubmatch(block)
		if tm == nil {
			continue
		}

		// HOME(...) lines also contain a coordinate pair; only match the
		// GPS(...) group so we never confuse the two.
		gm := srtGPSRe.FindStringSubmatch(block)
		if gm == nil {
			continue
		}

		lon, err1 := strconv.ParseFloat(gm[1], 64)
		lat, err2 := strconv.ParseFloat(gm[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if lat == 0 && lon == 0 {
			continue // no GPS fix yet
		}

		h, _ := strconv.ParseInt(tm[1], 10, 64)
		m, _ := strconv.ParseInt(tm[2], 10, 64)
		s, _ := strconv.ParseInt(tm[3], 10, 64)
		ms, _ := strconv.ParseInt(tm[4], 10, 64)

		sample := PositionSample{
			TimeOffsetMS: ((h*60+m)*60+s)*1000 + ms,
			FrameIndex:   -1,
			Latitude:     lat,
			Longitude:    lon,
		}

		if gm[3] != "" {
			sample.Satellites, _ = strconv.Atoi(gm[3])
		}
		if bm := srtBaroRe.FindStringSubmatch(block); bm != nil {
			sample.AltitudeM, _ = strconv.ParseFloat(bm[1], 64)
		}

		samples = append(samples, sample)
	}

	return samples
}
