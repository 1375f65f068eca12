package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/spot"
	"github.com/roach88/skimmer/internal/store"
)

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spots.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	at := time.Date(2015, time.March, 1, 12, 0, 0, 0, time.UTC)
	spots := []spot.Spot{
		{Zulu: "1200Z", Spotter: "W1AW", Frequency: 14040.0, Callsign: "K7MJG", SNR: "20", WPM: 20},
		{Zulu: "1201Z", Spotter: "W1AW", Frequency: 7025.0, Callsign: "DL8LAS", SNR: "9", WPM: 25},
		{Zulu: "1202Z", Spotter: "N4ZR", Frequency: 14041.5, Callsign: "K7MJG", SNR: "12", WPM: 22},
	}
	for i, s := range spots {
		_, err := st.WriteSpot(ctx, "", at.Add(time.Duration(i)*time.Minute), s)
		require.NoError(t, err)
	}
	return path
}

func TestSpots_TextByCallsign(t *testing.T) {
	cfg := writeConfig(t, "log:\n  level: error\n")
	db := seedStore(t)

	out, _, err := execute(context.Background(), NewSpotsCommand(&RootOptions{Format: "text", Config: cfg}), "--db", db, "--call", "k7mjg")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2015-03-01 12:00:00  1200Z  K7MJG"), lines[0])
	assert.Contains(t, lines[1], "de N4ZR")
}

func TestSpots_JSONLimitAndBand(t *testing.T) {
	cfg := writeConfig(t, "log:\n  level: error\n")
	db := seedStore(t)

	out, _, err := execute(context.Background(), NewSpotsCommand(&RootOptions{Format: "json", Config: cfg}), "--db", db, "--band", "20", "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []store.SpotRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "1202Z", resp.Data[0].Zulu)
	assert.Equal(t, 20, resp.Data[0].Band)
}

func TestSpots_Empty(t *testing.T) {
	cfg := writeConfig(t, "log:\n  level: error\n")
	db := filepath.Join(t.TempDir(), "empty.db")

	out, _, err := execute(context.Background(), NewSpotsCommand(&RootOptions{Format: "text", Config: cfg}), "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No spots.\n", out)
}

func TestSpots_DatabaseFromConfig(t *testing.T) {
	db := seedStore(t)
	cfg := writeConfig(t, "store:\n  path: "+db+"\n")

	out, _, err := execute(context.Background(), NewSpotsCommand(&RootOptions{Format: "text", Config: cfg}), "--limit", "0")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "de "))
}

func TestSpots_NoDatabase(t *testing.T) {
	cfg := writeConfig(t, "log:\n  level: error\n")
	t.Setenv("SKIMMER_STORE_PATH", "")

	out, _, err := execute(context.Background(), NewSpotsCommand(&RootOptions{Format: "text", Config: cfg}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no database")
}

func TestWriteSpotLine(t *testing.T) {
	var b strings.Builder
	writeSpotLine(&b, spot.Spot{Zulu: "1234Z", Spotter: "W1AW", Frequency: 14040.0, Callsign: "K7MJG", SNR: "20", WPM: 20})
	assert.Equal(t, "1234Z  K7MJG        14040.0   20m  20 dB  20 WPM  de W1AW\n", b.String())

	b.Reset()
	writeSpotLine(&b, spot.Spot{Zulu: "0001Z", Spotter: "W1AW", Frequency: 2500.0, Callsign: "K7MJG", SNR: "7", WPM: 9})
	assert.Contains(t, b.String(), "     -   7 dB   9 WPM")
}
