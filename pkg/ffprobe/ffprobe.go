// Package ffprobe wraps the ffprobe/ffmpeg binaries for container
// inspection and subtitle stream extraction. Video decoding itself goes
// through OpenCV; these helpers only cover what OpenCV does not expose:
// stream layout, format tags, and embedded data tracks.
package ffprobe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Stream describes one stream in the container.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"` // video, audio, subtitle, data
	Tags      map[string]string `json:"tags"`
}

// Format describes the container-level metadata.
type Format struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// Info is the parsed ffprobe output for one file.
type Info struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// SubtitleStreams returns the indexes of subtitle streams, in order. These
// are relative indexes usable with ffmpeg's 0:s:N mapping.
func (info *Info) SubtitleStreams() []int {
	var rel []int
	for _, s := range info.Streams {
		if s.CodecType == "subtitle" {
			rel = append(rel, len(rel))
		}
	}
	return rel
}

// LocationTag returns the container's static location tag if present.
// Different muxers use different keys for the same ISO 6709 payload.
func (info *Info) LocationTag() (string, bool) {
	for _, key := range []string{"location", "location-eng", "com.apple.quicktime.location.ISO6709"} {
		if v, ok := info.Format.Tags[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// DurationSeconds parses the container duration; 0 when unknown.
func (info *Info) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// Probe runs ffprobe on the given file and parses its JSON output.
func Probe(path string) (*Info, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %v (%s)", path, err, stderr.String())
	}

	var info Info
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &info, nil
}

// DumpSubtitleStream extracts subtitle stream N (subtitle-relative index)
// as SRT-formatted text on stdout. Drone flight-data tracks are stored as
// subtitle streams, so this is how the embedded telemetry gets out.
func DumpSubtitleStream(path string, streamIndex int) (string, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	cmd := exec.Command("ffmpeg",
		"-v", "quiet",
		"-i", path,
		"-map", fmt.Sprintf("0:s:%d", streamIndex),
		"-f", "srt",
		"-")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Flight-data cues can be long single lines; give the scanner room.
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var out bytes.Buffer
	for scanner.Scan() {
		out.WriteString(scanner.Text())
		out.WriteByte('\n')
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("ffmpeg subtitle dump failed for %s stream %d: %w", path, streamIndex, err)
	}
	if scanErr != nil {
		return "", fmt.Errorf("failed reading ffmpeg output: %w", scanErr)
	}

	return out.String(), nil
}
