package depth

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

type Device string

const (
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
	DeviceCPU  Device = "cpu"
	DeviceAuto Device = "auto"
)

// Detector reports which accelerator, if any, the host exposes.
type Detector func() (Device, bool)

// SelectDevice resolves the configured preference. "auto" takes the
// detected accelerator and falls back to cpu.
func SelectDevice(pref string, detect Detector) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(pref))); d {
	case DeviceCUDA, DeviceMPS, DeviceCPU:
		return d, nil
	case DeviceAuto, "":
		if detect != nil {
			if acc, ok := detect(); ok {
				return acc, nil
			}
		}
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("unknown device %q", pref)
	}
}

// DetectAccelerator looks for an NVIDIA driver node that is not hidden via
// CUDA_VISIBLE_DEVICES, and for Apple silicon.
func DetectAccelerator() (Device, bool) {
	if cudaVisible(os.LookupEnv) {
		if _, err := os.Stat("/dev/nvidiactl"); err == nil {
			return DeviceCUDA, true
		}
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return DeviceMPS, true
	}
	return "", false
}

func cudaVisible(lookup func(string) (string, bool)) bool {
	value, set := lookup("CUDA_VISIBLE_DEVICES")
	if !set {
		return true
	}
	value = strings.TrimSpace(value)
	return value != "" && value != "-1"
}
