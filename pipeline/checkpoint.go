package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"airlights/tracking"
)

const checkpointVersion = 1

// Checkpoint is a resumable snapshot of a run: everything measured so far
// plus the tracker state needed to continue at NextFrame.
type Checkpoint struct {
	Version   int       `msgpack:"version"`
	SessionID string    `msgpack:"session_id"`
	VideoPath string    `msgpack:"video_path"`
	SavedAt   time.Time `msgpack:"saved_at"`

	NextFrame int                       `msgpack:"next_frame"`
	Tracks    []tracking.PersistedTrack `msgpack:"tracks"`
	Series    Series                    `msgpack:"series"`
}

// NewCheckpoint snapshots the current run state.
func NewCheckpoint(sess *Session, series *Series, nextFrame int) *Checkpoint {
	return &Checkpoint{
		Version:   checkpointVersion,
		SessionID: sess.ID,
		VideoPath: sess.Cfg.VideoPath,
		SavedAt:   time.Now().UTC(),
		NextFrame: nextFrame,
		Tracks:    sess.Tracker.Export(),
		Series:    *series,
	}
}

// Apply restores the tracker and series from the checkpoint.
func (cp *Checkpoint) Apply(trk *tracking.Tracker, series *Series) error {
	if cp.Version != checkpointVersion {
		return fmt.Errorf("checkpoint version %d not supported", cp.Version)
	}
	if err := trk.Restore(cp.Tracks, cp.NextFrame-1); err != nil {
		return err
	}
	series.SessionID = cp.Series.SessionID
	series.CreatedAt = cp.Series.CreatedAt
	series.Frames = cp.Series.Frames
	return nil
}

// SaveCheckpoint writes the checkpoint atomically: a temp file in the same
// directory, then rename. A crash mid-save leaves the previous checkpoint
// intact.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	raw, err := msgpack.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(compressed, nil)
	dec.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decompress checkpoint %s: %w", path, err)
	}

	var cp Checkpoint
	if err := msgpack.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}
