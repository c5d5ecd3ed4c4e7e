package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestIsFatalClassifiesKnownKinds(t *testing.T) {
	require.True(t, IsFatal(NewJobError(DurationTooLong, fmt.Errorf("too long"))))
	require.True(t, IsFatal(NewJobError(DownloadRejected, fmt.Errorf("ssrf"))))
	require.False(t, IsFatal(NewJobError(TranscodeFailed, fmt.Errorf("one rendition"))))
	require.False(t, IsFatal(fmt.Errorf("plain error")))
}

func TestKindOfDefaultsToInternalError(t *testing.T) {
	require.Equal(t, InternalError, KindOf(fmt.Errorf("plain error")))
	require.Equal(t, InvalidCodec, KindOf(NewJobError(InvalidCodec, nil)))
}

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	var permErr *backoff.PermanentError
	require.True(t, errors.As(err, &permErr))
}

func TestJobErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewJobError(TranscodeFailed, cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "TranscodeFailed")
}
