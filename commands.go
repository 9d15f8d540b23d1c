package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"airlights/config"
	"airlights/detection"
	"airlights/overlay"
	"airlights/pipeline"
	"airlights/pkg/ffprobe"
	"airlights/telemetry"
	"airlights/tracking"
	"airlights/video"
)

func newProcessCmd(root *cobra.Command) {
	var (
		configPath      string
		outputPath      string
		overlayPath     string
		checkpointPath  string
		checkpointEvery int
		resume          bool
		workers         int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one video into a measurement series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = strings.TrimSuffix(cfg.VideoPath, filepath.Ext(cfg.VideoPath)) + ".measurements.json.zst"
			}
			return runProcess(cmd.Context(), cfg, processOpts{
				output:          outputPath,
				overlay:         overlayPath,
				checkpoint:      checkpointPath,
				checkpointEvery: checkpointEvery,
				resume:          resume,
				workers:         workers,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "session config file (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "measurement output path (.json or .json.zst)")
	cmd.Flags().StringVar(&overlayPath, "overlay", "", "write an annotated video to this path")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file for interrupt/resume")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "frames between checkpoints (0 uses config)")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the checkpoint file")
	cmd.Flags().IntVar(&workers, "workers", 0, "detection worker count (0 uses config)")
	cmd.MarkFlagRequired("config")

	root.AddCommand(cmd)
}

type processOpts struct {
	output          string
	overlay         string
	checkpoint      string
	checkpointEvery int
	resume          bool
	workers         int
}

func runProcess(ctx context.Context, cfg *config.Session, opts processOpts) error {
	sess, err := pipeline.NewSession(cfg, flagCPUOnly, lg)
	if err != nil {
		return err
	}
	defer sess.Close()

	pipeOpts := pipeline.Options{
		Workers:          opts.workers,
		CheckpointPath:   opts.checkpoint,
		CheckpointEveryN: opts.checkpointEvery,
		Resume:           opts.resume,
		OnProgress: func(p pipeline.Progress) {
			pct := 0.0
			if p.TotalFrames > 0 {
				pct = float64(p.FramesProcessed) / float64(p.TotalFrames) * 100
			}
			lg.Infof("[PROCESS] %d/%d frames (%.1f%%) in %s", p.FramesProcessed, p.TotalFrames, pct, p.Elapsed.Round(time.Second))
		},
	}

	var ow *overlay.Writer
	if opts.overlay != "" {
		ow, err = overlay.NewWriter(opts.overlay, sess.Source.FPS(), sess.Source.Width(), sess.Source.Height())
		if err != nil {
			return err
		}
		defer ow.Close()
		pipeOpts.OnFrame = func(frame *gocv.Mat, fm pipeline.FrameMeasurement, snaps map[string]tracking.Snapshot) {
			if err := ow.WriteFrame(frame, fm, snaps); err != nil {
				lg.Warnf("[PROCESS] overlay write failed on frame %d: %v", fm.FrameIndex, err)
			}
		}
	}

	series, err := pipeline.New(sess, pipeOpts).Run(ctx)
	if err != nil {
		return err
	}
	if err := series.WriteFile(opts.output); err != nil {
		return err
	}

	lg.Infof("[PROCESS] wrote %d frame measurements to %s", len(series.Frames), opts.output)
	fmt.Printf("Processed %d frames -> %s\n", len(series.Frames), opts.output)
	return nil
}

func newDetectCmd(root *cobra.Command) {
	var (
		videoPath  string
		frameIndex int
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the PAPI line on one frame and print seed positions",
		Long: "Runs blob detection and PAPI line identification on a single frame\n" +
			"and prints the four light positions as percent seeds, ready to paste\n" +
			"into a session config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := video.Open(videoPath)
			if err != nil {
				return err
			}
			defer src.Close()

			frame, err := src.ReadAt(frameIndex)
			if err != nil {
				return err
			}
			defer frame.Close()

			pm := detection.NewProviderManager(lg)
			if err := pm.Initialize(flagCPUOnly); err != nil {
				return err
			}
			defer pm.Close()

			defaults := &config.Session{}
			defaults.ApplyDefaults()
			det := detection.NewDetector(pm.Provider(), detection.Params{
				MaskParams: detection.MaskParams{
					BrightnessThreshold: defaults.Tuning.BrightnessThreshold,
					SaturatedThreshold:  defaults.Tuning.SaturatedThreshold,
				},
				MinBlobArea: defaults.Tuning.MinBlobArea,
				MaxBlobArea: defaults.Tuning.MaxBlobArea,
			}, lg)

			lights, err := det.Detect(frame)
			if err != nil {
				return err
			}
			line := detection.NewLineIdentifier(detection.DefaultLineParams(), lg).Identify(lights, src.Width(), src.Height())

			seeds := make(map[string]config.LightSeed, len(line.Lights))
			for i, l := range line.Lights {
				if i >= len(config.LightNames) {
					break
				}
				seeds[config.LightNames[i]] = config.SeedFromPixels(l.CenterX, l.CenterY, l.Width, l.Height, src.Width(), src.Height())
			}

			out, err := json.MarshalIndent(struct {
				Frame      int                         `json:"frame"`
				Candidates int                         `json:"candidates"`
				Method     detection.LineMethod        `json:"method"`
				Score      float64                     `json:"score"`
				Seeds      map[string]config.LightSeed `json:"seeds"`
			}{frameIndex, len(lights), line.Method, line.Score, seeds}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&videoPath, "video", "v", "", "video file (required)")
	cmd.Flags().IntVarP(&frameIndex, "frame", "f", 0, "frame index to inspect")
	cmd.MarkFlagRequired("video")

	root.AddCommand(cmd)
}

func newProbeCmd(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "probe <video>",
		Short: "Inspect a video's streams and embedded position data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			info, err := ffprobe.Probe(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %.1fs, %d streams (%d subtitle)\n", path, info.DurationSeconds(), len(info.Streams), len(info.SubtitleStreams()))

			samples, encoding, err := telemetry.NewExtractor(lg).Extract(path)
			if err != nil {
				fmt.Println("position data: none")
				return err
			}

			first, last := samples[0], samples[len(samples)-1]
			fmt.Printf("position data: %s, %d samples\n", encoding, len(samples))
			fmt.Printf("  first: %.6f,%.6f alt %.1fm @ %dms\n", first.Latitude, first.Longitude, first.AltitudeM, first.TimeOffsetMS)
			fmt.Printf("  last:  %.6f,%.6f alt %.1fm @ %dms\n", last.Latitude, last.Longitude, last.AltitudeM, last.TimeOffsetMS)
			return nil
		},
	}

	root.AddCommand(cmd)
}

func newWatchCmd(root *cobra.Command) {
	var (
		dir         string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and process session configs as they arrive",
		Long: "Watches a directory for new .session.json files and processes each\n" +
			"referenced video. Multiple videos run concurrently up to the limit;\n" +
			"frames within one video are still measured strictly in order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			lg.Infof("[WATCH] watching %s (concurrency %d)", dir, concurrency)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)

			// Process configs already present before the watch started.
			existing, err := filepath.Glob(filepath.Join(dir, "*.session.json"))
			if err != nil {
				return err
			}
			for _, path := range existing {
				submitSession(ctx, g, path)
			}

			for {
				select {
				case <-ctx.Done():
					g.Wait()
					return ctx.Err()
				case ev, ok := <-watcher.Events:
					if !ok {
						return g.Wait()
					}
					if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
						continue
					}
					if !strings.HasSuffix(ev.Name, ".session.json") {
						continue
					}
					submitSession(ctx, g, ev.Name)
				case werr, ok := <-watcher.Errors:
					if !ok {
						return g.Wait()
					}
					lg.Warnf("[WATCH] watcher error: %v", werr)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to watch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "videos processed in parallel")

	root.AddCommand(cmd)
}

// submitSession queues one session config for processing. Failures are
// logged and marked next to the config so one bad session never stops the
// watch loop.
func submitSession(ctx context.Context, g *errgroup.Group, path string) {
	g.Go(func() error {
		// Uploads are not atomic; give the writer a moment to finish.
		time.Sleep(500 * time.Millisecond)

		cfg, err := config.Load(path)
		if err != nil {
			lg.Errorf("[WATCH] bad session config %s: %v", path, err)
			return nil
		}

		out := strings.TrimSuffix(path, ".session.json") + ".measurements.json.zst"
		lg.Infof("[WATCH] processing %s -> %s", cfg.VideoPath, out)

		if err := runProcess(ctx, cfg, processOpts{output: out}); err != nil {
			lg.Errorf("[WATCH] processing %s failed: %v", cfg.VideoPath, err)
			markFailed(path, err)
		}
		return nil
	})
}

func markFailed(configPath string, cause error) {
	msg := fmt.Sprintf("%s: %v\n", time.Now().UTC().Format(time.RFC3339), cause)
	if err := os.WriteFile(configPath+".failed", []byte(msg), 0o644); err != nil {
		lg.Warnf("[WATCH] could not write failure marker for %s: %v", configPath, err)
	}
}
