package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// ErrListUnsupported is returned where cameras can only be addressed by
// index (macOS, Windows).
var ErrListUnsupported = errors.New("camera listing not supported on this platform")

// Device is a camera Open can address by index.
type Device struct {
	Index int
	Path  string
	Name  string
}

const sysVideoClass = "/sys/class/video4linux"

// ListDevices returns the V4L2 nodes on Linux, ordered by index.
func ListDevices() ([]Device, error) {
	if runtime.GOOS != "linux" {
		return nil, ErrListUnsupported
	}
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("failed to list video nodes: %w", err)
	}
	return devicesFromPaths(paths, sysVideoClass), nil
}

// devicesFromPaths turns /dev/videoN paths into devices, reading the driver
// name from sysfs when it is available.
func devicesFromPaths(paths []string, sysRoot string) []Device {
	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		index, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
		if err != nil || index < 0 || !strings.HasPrefix(base, "video") {
			continue
		}
		d := Device{Index: index, Path: p}
		if name, err := os.ReadFile(filepath.Join(sysRoot, base, "name")); err == nil {
			d.Name = strings.TrimSpace(string(name))
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices
}
