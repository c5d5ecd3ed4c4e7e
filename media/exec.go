package media

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"github.com/livepeer/vodcompress/log"
)

func streamOutput(jobID string, src io.Reader) {
	s := bufio.NewReader(src)
	for {
		line, err := s.ReadSlice('\n')
		if err == io.EOF && len(line) == 0 {
			return
		}
		if err != nil && err != io.EOF {
			log.LogError(jobID, "ffmpeg output stream error", err)
			return
		}
		log.Log(jobID, "ffmpeg", "line", string(line))
		if err == io.EOF {
			return
		}
	}
}

// logOutputs starts goroutines that copy cmd's stdout/stderr into the job's
// logger.
func logOutputs(jobID string, cmd *exec.Cmd) error {
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	go streamOutput(jobID, stderrPipe)
	go streamOutput(jobID, stdoutPipe)
	return nil
}
