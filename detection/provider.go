package detection

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"airlights/pkg/logging"
)

// MaskParams are the thresholds used when building the candidate mask.
type MaskParams struct {
	BrightnessThreshold float64 // plain gray threshold, 0-255
	SaturatedThreshold  float64 // stricter near-white threshold, 0-255
}

// Provider builds the binary candidate mask for one frame: the union of a
// raw brightness threshold, a stricter saturated threshold, and a
// locally-contrast-enhanced threshold. Implementations differ only in where
// the per-pixel work runs.
type Provider interface {
	// BuildMask writes the union mask for a BGR frame into dst.
	BuildMask(frame gocv.Mat, params MaskParams, dst *gocv.Mat) error
	Close() error
	Info() ProviderInfo
}

// ProviderInfo describes the active mask provider.
type ProviderInfo struct {
	Type     string        // "GPU" or "CPU"
	Backend  string        // "CUDA" or "OpenCV CPU"
	Device   string        // device identifier
	InitTime time.Duration // time taken to initialize
}

// ProviderManager handles automatic provider selection and fallback: CUDA
// when the hardware checks and a test mask both pass, CPU otherwise.
type ProviderManager struct {
	current Provider
	info    ProviderInfo
	lg      *logging.Logger
}

// NewProviderManager creates a provider manager. lg may be nil.
func NewProviderManager(lg *logging.Logger) *ProviderManager {
	return &ProviderManager{lg: lg}
}

// Initialize performs auto-detection and initializes the best available
// provider. forceCPU skips the GPU probe entirely.
func (pm *ProviderManager) Initialize(forceCPU bool) error {
	pm.lg.Infof("[PROVIDER] auto-detecting best mask provider...")

	if !forceCPU && hasGPUCapability(pm.lg) {
		pm.lg.Infof("[PROVIDER] GPU capability detected, attempting CUDA initialization...")
		gpu := &GPUProvider{}

		start := time.Now()
		if err := gpu.Initialize(); err == nil {
			// Run a test mask to make sure CUDA really works before
			// committing a whole video to it.
			if testProvider(gpu) {
				pm.current = gpu
				pm.info = gpu.Info()
				pm.info.InitTime = time.Since(start)
				pm.lg.Infof("[PROVIDER] GPU provider initialized (%v)", pm.info.InitTime)
				return nil
			}
			pm.lg.Warnf("[PROVIDER] GPU test mask failed, falling back to CPU")
			gpu.Close()
		} else {
			pm.lg.Warnf("[PROVIDER] GPU initialization failed: %v, falling back to CPU", err)
		}
	} else if !forceCPU {
		pm.lg.Infof("[PROVIDER] no GPU capability detected")
	}

	cpu := &CPUProvider{}
	start := time.Now()
	if err := cpu.Initialize(); err != nil {
		return fmt.Errorf("both GPU and CPU providers failed: %w", err)
	}

	pm.current = cpu
	pm.info = cpu.Info()
	pm.info.InitTime = time.Since(start)
	pm.lg.Infof("[PROVIDER] CPU provider initialized (%v)", pm.info.InitTime)
	return nil
}

// Provider returns the current active provider.
func (pm *ProviderManager) Provider() Provider { return pm.current }

// Info returns information about the current provider.
func (pm *ProviderManager) Info() ProviderInfo { return pm.info }

// Close closes the current provider.
func (pm *ProviderManager) Close() error {
	if pm.current != nil {
		return pm.current.Close()
	}
	return nil
}

// hasGPUCapability checks whether CUDA mask building is worth attempting.
func hasGPUCapability(lg *logging.Logger) bool {
	if !hasNVIDIAGPU() {
		lg.Debugf("[GPU_DETECT] no NVIDIA GPU detected")
		return false
	}
	lg.Debugf("[GPU_DETECT] NVIDIA GPU found")

	if !hasNVIDIADriver() {
		lg.Debugf("[GPU_DETECT] NVIDIA drivers not loaded")
		return false
	}
	lg.Debugf("[GPU_DETECT] NVIDIA drivers loaded, CUDA tested during initialization")
	return true
}

// hasNVIDIAGPU checks if an NVIDIA GPU is present.
func hasNVIDIAGPU() bool {
	output, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "nvidia")
}

// hasNVIDIADriver checks if NVIDIA drivers are loaded.
func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider builds a mask on a small synthetic frame to verify the
// provider works end to end.
func testProvider(p Provider) bool {
	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	err := p.BuildMask(frame, MaskParams{BrightnessThreshold: 200, SaturatedThreshold: 240}, &mask)
	return err == nil && !mask.Empty()
}
