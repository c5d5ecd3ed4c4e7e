package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

func TestMemoryClientFinalizeFatalErrorFailsImmediately(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	_, err := m.Enqueue(ctx, Submission{PostID: 31})
	require.NoError(t, err)
	claimed, err := m.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	fatalErr := vcerrors.NewJobError(vcerrors.FileTooLarge, errors.New("source too large"))
	state, err := m.Finalize(ctx, claimed.ID, nil, fatalErr)
	require.NoError(t, err)
	require.Equal(t, StateFailed, state)
}

func TestMemoryClientFinalizeNonFatalErrorSchedulesDelay(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	_, err := m.Enqueue(ctx, Submission{PostID: 32})
	require.NoError(t, err)
	claimed, err := m.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)

	state, err := m.Finalize(ctx, claimed.ID, nil, errors.New("transient network error"))
	require.NoError(t, err)
	require.Equal(t, StateDelayed, state)
}
