package media

import (
	"strings"

	"github.com/grafov/m3u8"
)

// decodeMasterForTest parses raw back into a MasterPlaylist and
// re-serializes it, letting tests assert the round trip is byte-identical.
func decodeMasterForTest(raw string) (string, string, error) {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(raw), true)
	if err != nil {
		return "", "", err
	}
	if listType != m3u8.MASTER {
		return "", "", err
	}
	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return "", "", err
	}
	return master.String(), "master", nil
}
