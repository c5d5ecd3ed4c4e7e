package pipeline

import (
	"fmt"

	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
	"github.com/livepeer/vodcompress/media"
)

// ValidationResult is a boolean verdict plus human-readable reasons and a
// single machine-readable Kind.
type ValidationResult struct {
	Valid    bool
	Messages []string
	Kind     vcerrors.Kind
}

// Validate enforces the duration, size, codec, and container limits against
// a probed source.
func Validate(info media.VideoInfo) ValidationResult {
	var messages []string
	kind := vcerrors.Kind("")

	if info.DurationSeconds > config.MaxVideoDurationSeconds {
		messages = append(messages, fmt.Sprintf("duration %.1fs exceeds the %ds limit", info.DurationSeconds, config.MaxVideoDurationSeconds))
		kind = vcerrors.DurationTooLong
	}
	if info.SizeBytes > config.MaxVideoFileBytes {
		messages = append(messages, fmt.Sprintf("file size %d bytes exceeds the %d byte limit", info.SizeBytes, config.MaxVideoFileBytes))
		if kind == "" {
			kind = vcerrors.FileTooLarge
		}
	}
	if !config.AllowedVideoCodecs[info.VideoCodec] {
		messages = append(messages, fmt.Sprintf("video codec %q is not allowed", info.VideoCodec))
		if kind == "" {
			kind = vcerrors.InvalidCodec
		}
	}
	if !config.AllowedContainers[info.Container] {
		messages = append(messages, fmt.Sprintf("container %q is not allowed", info.Container))
		if kind == "" {
			kind = vcerrors.InvalidContainer
		}
	}

	return ValidationResult{Valid: len(messages) == 0, Messages: messages, Kind: kind}
}

// AsError renders a failed ValidationResult as a classified error.
func (v ValidationResult) AsError() error {
	if v.Valid {
		return nil
	}
	return vcerrors.NewJobError(v.Kind, fmt.Errorf("%s", joinMessages(v.Messages)))
}

func joinMessages(messages []string) string {
	out := ""
	for i, m := range messages {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}
