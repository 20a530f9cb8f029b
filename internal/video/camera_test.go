package video

import (
	"runtime"
	"strings"
	"testing"
)

func TestPipelineDescriptionUsesDeviceIndex(t *testing.T) {
	desc := pipelineDescription(2)

	switch runtime.GOOS {
	case "darwin", "windows":
		if !strings.Contains(desc, "device-index=2") {
			t.Fatalf("expected device-index=2 in %q", desc)
		}
	default:
		if !strings.Contains(desc, "/dev/video2") {
			t.Fatalf("expected /dev/video2 in %q", desc)
		}
	}

	if !strings.Contains(desc, "format=RGB") {
		t.Fatalf("expected RGB caps in %q", desc)
	}
	if !strings.HasSuffix(desc, "appsink name=sink max-buffers=2 drop=true sync=false") {
		t.Fatalf("unexpected sink in %q", desc)
	}
}
