package media

import (
	"context"
	"fmt"
	"os/exec"
)

func lookupBinary(ctx context.Context, bin string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("transcoder binary %q not found on PATH: %w", bin, err)
	}
	cmd := exec.CommandContext(ctx, path, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("transcoder binary %q failed to run: %w", path, err)
	}
	return nil
}
