package worker

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDirWritable creates dir if missing and confirms the process can
// actually write into it, so a misconfigured volume mount fails fast at
// boot instead of surfacing as a download/transcode error mid-job.
func EnsureDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	return os.Remove(probe)
}
