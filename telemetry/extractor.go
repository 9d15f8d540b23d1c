package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"airlights/pkg/ffprobe"
	"airlights/pkg/logging"
)

// Extractor locates and parses GPS metadata for a video file. The three
// supported encodings are tried in order of reliability:
//
//  1. a sidecar subtitle file next to the video (GPS triplet cues),
//  2. an embedded per-frame flight-data subtitle stream,
//  3. a single static location tag in the container format metadata.
//
// The first encoding that yields samples wins. When none do, Extract
// returns ErrNoPositionData; the pipeline must fail rather than fabricate
// positions.
type Extractor struct {
	lg *logging.Logger
}

// NewExtractor creates an extractor. lg may be nil.
func NewExtractor(lg *logging.Logger) *Extractor {
	return &Extractor{lg: lg}
}

// Encoding identifies which metadata source produced the samples.
type Encoding string

const (
	EncodingSidecarSRT   Encoding = "sidecar-srt"
	EncodingFlightRecord Encoding = "flight-record"
	EncodingContainerTag Encoding = "container-tag"
)

// Extract returns the position samples for videoPath and the encoding they
// came from.
func (e *Extractor) Extract(videoPath string) ([]PositionSample, Encoding, error) {
	// (a) Sidecar subtitle file.
	if samples := e.fromSidecar(videoPath); len(samples) > 0 {
		e.lg.Infof("[TELEMETRY] sidecar subtitle track: %d samples", len(samples))
		return samples, EncodingSidecarSRT, nil
	}

	// (b) and (c) both need the container probed.
	info, err := ffprobe.Probe(videoPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to probe %s: %w", videoPath, err)
	}

	if samples := e.fromEmbeddedStreams(videoPath, info); len(samples) > 0 {
		e.lg.Infof("[TELEMETRY] embedded flight-data stream: %d samples", len(samples))
		return samples, EncodingFlightRecord, nil
	}

	if tag, ok := info.LocationTag(); ok {
		if sample, ok := ParseISO6709(strings.TrimSpace(tag)); ok {
			e.lg.Infof("[TELEMETRY] static container location tag: %s", tag)
			return []PositionSample{sample}, EncodingContainerTag, nil
		}
		e.lg.Warnf("[TELEMETRY] container location tag %q is not ISO 6709", tag)
	}

	return nil, "", fmt.Errorf("%w: %s", ErrNoPositionData, videoPath)
}

// fromSidecar looks for a subtitle file next to the video (extension
// swapped to .srt or .SRT) and parses it.
func (e *Extractor) fromSidecar(videoPath string) []PositionSample {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	for _, ext := range []string{".srt", ".SRT"} {
		data, err := os.ReadFile(base + ext)
		if err != nil {
			continue
		}
		samples := ParseSRT(string(data))
		if len(samples) == 0 {
			e.lg.Debugf("[TELEMETRY] sidecar %s%s has no GPS cues", base, ext)
			continue
		}
		return samples
	}
	return nil
}

// fromEmbeddedStreams dumps each subtitle stream in the container and
// parses the first one that looks like a flight-data record. Streams that
// dump fine but parse to nothing are skipped, not fatal: many recordings
// carry ordinary caption tracks too.
func (e *Extractor) fromEmbeddedStreams(videoPath string, info *ffprobe.Info) []PositionSample {
	for _, idx := range info.SubtitleStreams() {
		text, err := ffprobe.DumpSubtitleStream(videoPath, idx)
		if err != nil {
			e.lg.Warnf("[TELEMETRY] failed to dump subtitle stream %d: %v", idx, err)
			continue
		}

		if samples := ParseFlightRecord(text); len(samples) > 0 {
			return samples
		}
		// An embedded track can also carry plain GPS cues in SRT form.
		if samples := ParseSRT(text); len(samples) > 0 {
			return samples
		}
		e.lg.Debugf("[TELEMETRY] subtitle stream %d has no position data", idx)
	}
	return nil
}
