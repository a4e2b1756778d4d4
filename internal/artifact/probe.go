package artifact

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbe returns a DurationProbe backed by the ffprobe binary. Callers get a
// nil probe (duration 0 for every artifact) when ffprobe is not installed.
func FFProbe(ctx context.Context) DurationProbe {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil
	}
	return func(path string) (time.Duration, error) {
		out, err := exec.CommandContext(ctx, "ffprobe",
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		).Output()
		if err != nil {
			return 0, fmt.Errorf("ffprobe %s: %w", path, err)
		}

		secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return 0, fmt.Errorf("ffprobe %s: parsing duration: %w", path, err)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
