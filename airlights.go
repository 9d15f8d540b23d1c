// airlights measures PAPI approach-light geometry from drone inspection
// videos: it detects and tracks the individual lights across the flight,
// joins the drone's recorded GPS track, and emits per-frame angles and
// distances to each light and the runway touch point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"airlights/pkg/logging"
)

// Set via -ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	flagLogLevel string
	flagLogDir   string
	flagCPUOnly  bool

	lg *logging.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "airlights",
		Short:         "PAPI light measurement from drone video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lg = logging.New(flagLogLevel, flagLogDir)
		},
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "logs", "directory for rotated log files")
	root.PersistentFlags().BoolVar(&flagCPUOnly, "cpu-only", false, "skip GPU detection and process on CPU")

	newProcessCmd(root)
	newDetectCmd(root)
	newProbeCmd(root)
	newWatchCmd(root)
	newVersionCmd(root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		lg.Errorf("[MAIN] %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("airlights %s (%s) %s/%s\n", version, commit, runtime.GOOS, runtime.GOARCH)
		},
	})
}
