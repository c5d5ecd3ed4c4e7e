package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMasterPlaylistOrdersAscendingResolution(t *testing.T) {
	playlist, err := BuildMasterPlaylist([]Variant{
		{Quality: Q480p, Width: 854, Height: 480},
		{Quality: Q144p, Width: 256, Height: 144},
		{Quality: Q360p, Width: 640, Height: 360},
	})
	require.NoError(t, err)

	idx144 := strings.Index(playlist, "144p.m3u8")
	idx360 := strings.Index(playlist, "360p.m3u8")
	idx480 := strings.Index(playlist, "480p.m3u8")
	require.True(t, idx144 < idx360)
	require.True(t, idx360 < idx480)
	require.Contains(t, playlist, "#EXTM3U")
}

func TestBuildMasterPlaylistOmitsMissingVariants(t *testing.T) {
	playlist, err := BuildMasterPlaylist([]Variant{
		{Quality: Q480p, Width: 854, Height: 480},
		{Quality: Q144p, Width: 256, Height: 144},
	})
	require.NoError(t, err)
	require.NotContains(t, playlist, "240p.m3u8")
	require.NotContains(t, playlist, "360p.m3u8")
}

func TestBuildMasterPlaylistRoundTripsThroughParser(t *testing.T) {
	playlist, err := BuildMasterPlaylist([]Variant{
		{Quality: Q240p, Width: 426, Height: 240},
		{Quality: Q144p, Width: 256, Height: 144},
	})
	require.NoError(t, err)

	reparsed, listType, err := decodeMasterForTest(playlist)
	require.NoError(t, err)
	require.Equal(t, "master", listType)
	require.Equal(t, playlist, reparsed)
}
