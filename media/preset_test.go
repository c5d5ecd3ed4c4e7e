package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScaledWidthPreservesAspectAndIsEven(t *testing.T) {
	w := ScaledWidth(1920, 1080, 480)
	require.Equal(t, 0, w%2)
	require.InDelta(t, 854, w, 2)
}

func TestScaledWidthZeroHeightFallsBackToTarget(t *testing.T) {
	require.Equal(t, 480, ScaledWidth(100, 0, 480))
}

func TestPresetsCoverAllCompressionOrderQualities(t *testing.T) {
	for _, q := range CompressionOrder {
		_, ok := Presets[q]
		require.True(t, ok, "missing preset for %s", q)
	}
}

func TestHLSOrderIsReverseOfCompressionOrder(t *testing.T) {
	require.Len(t, HLSOrder, len(CompressionOrder))
	for i, q := range HLSOrder {
		require.Equal(t, q, CompressionOrder[len(CompressionOrder)-1-i])
	}
}
