package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/store"
	"github.com/roach88/skimmer/internal/testutil"
)

// feedServer accepts one connection, logs the caller in and sends lines.
// It keeps the connection open until the test ends. With prompt false it
// accepts and stays silent.
func feedServer(t *testing.T, prompt bool, lines ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		ln.Close()
	})

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if prompt {
			fmt.Fprint(conn, "Please enter your call: ")
			if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
				return
			}
			fmt.Fprint(conn, "\r\nWelcome to RBN's bulk spots telnet server.\r\n")
			for _, l := range lines {
				fmt.Fprint(conn, l+"\r\n")
			}
		}
		<-done
	}()
	return ln.Addr().String()
}

func runConfig(t *testing.T, addr, extra string) string {
	return writeConfig(t, fmt.Sprintf(`callsign: k7mjg
clusters: lab
catalog:
  lab: ["%s"]
poll_interval: 5ms
%s`, addr, extra))
}

func runFor(t *testing.T, d time.Duration, opts *RootOptions, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	runOpts := &RunOptions{RootOptions: opts, SessionIDs: testutil.NewFixedSessionGenerator("run")}
	return execute(ctx, newRunCommand(runOpts), args...)
}

func TestRun_PrintsSpotsUntilCancelled(t *testing.T) {
	addr := feedServer(t, true,
		spotLine(nil),
		spotLine(func(l *testutil.SpotLine) { l.Callsign = "DL8LAS"; l.Frequency = "7025.0" }),
		spotLine(func(l *testutil.SpotLine) { l.Mode = "SSB" }),
		spotLine(nil),
	)
	path := runConfig(t, addr, "")

	out, _, err := runFor(t, 750*time.Millisecond, &RootOptions{Format: "text", Config: path})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "repeat of K7MJG is inside the renotify delay")
	assert.Contains(t, lines[0], "K7MJG")
	assert.Contains(t, lines[0], "14040.0")
	assert.Contains(t, lines[0], "20m")
	assert.Contains(t, lines[1], "DL8LAS")
	assert.Contains(t, lines[1], "40m")
	assert.Contains(t, lines[1], "de W1AW")
}

func TestRun_AllPrintsRepeats(t *testing.T) {
	addr := feedServer(t, true, spotLine(nil), spotLine(nil))
	path := runConfig(t, addr, "")

	out, _, err := runFor(t, 750*time.Millisecond, &RootOptions{Format: "text", Config: path}, "--all")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "K7MJG"))
	assert.Equal(t, 1, strings.Count(out, "last spotted"))
	assert.Contains(t, out, "last spotted 1 second ago on 14040.0")
}

func TestRun_JSONLinesCarryLastSpotted(t *testing.T) {
	on40 := spotLine(func(l *testutil.SpotLine) { l.Frequency = "7025.0" })
	addr := feedServer(t, true, spotLine(nil), on40)
	path := runConfig(t, addr, "")

	out, _, err := runFor(t, 750*time.Millisecond, &RootOptions{Format: "json", Config: path}, "--all")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first, second struct {
		Data struct {
			Frequency   float64 `json:"frequency"`
			LastSpotted *struct {
				Frequency float64   `json:"frequency"`
				At        time.Time `json:"at"`
			} `json:"last_spotted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Nil(t, first.Data.LastSpotted)
	require.NotNil(t, second.Data.LastSpotted)
	assert.Equal(t, 7025.0, second.Data.Frequency)
	assert.Equal(t, 14040.0, second.Data.LastSpotted.Frequency)
}

func TestAgo(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "1 second"},
		{1500 * time.Millisecond, "1 second"},
		{42 * time.Second, "42 seconds"},
		{60 * time.Second, "60 seconds"},
		{61 * time.Second, "1 minute"},
		{150 * time.Second, "2 minutes"},
		{59 * time.Minute, "59 minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ago(tt.d))
		})
	}
}

func TestRun_JSONLines(t *testing.T) {
	addr := feedServer(t, true, spotLine(nil))
	path := runConfig(t, addr, "")

	out, _, err := runFor(t, 750*time.Millisecond, &RootOptions{Format: "json", Config: path})
	require.NoError(t, err)

	var resp struct {
		Status  string `json:"status"`
		Session string `json:"session"`
		Data    struct {
			Callsign  string  `json:"callsign"`
			Frequency float64 `json:"frequency"`
			SNR       string  `json:"snr"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Session)
	assert.Equal(t, "K7MJG", resp.Data.Callsign)
	assert.Equal(t, 14040.0, resp.Data.Frequency)
	assert.Equal(t, "20", resp.Data.SNR)
}

func TestRun_StoresSessionAndSpots(t *testing.T) {
	addr := feedServer(t, true, spotLine(nil), "DX de garbage")
	dbPath := t.TempDir() + "/spots.db"
	path := runConfig(t, addr, "")

	_, _, err := runFor(t, 750*time.Millisecond, &RootOptions{Format: "text", Config: path}, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ReadSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].ID)
	assert.Equal(t, "LAB", sessions[0].Cluster)
	assert.Equal(t, "shutdown", sessions[0].EndReason)
	require.NotNil(t, sessions[0].Ended)

	spots, err := st.ReadSpots(context.Background(), store.SpotQuery{})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "run-1", spots[0].SessionID)
	assert.Equal(t, 20, spots[0].Band)

	rejects, err := st.ReadRejections(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, rejects, 1)
	assert.Equal(t, "DX de garbage", rejects[0].Line)
}

func TestRun_ClosedAfterPromptTimeout(t *testing.T) {
	addr := feedServer(t, false)
	path := runConfig(t, addr, "timeouts:\n  prompt: 50ms\n")

	_, _, err := runFor(t, 5*time.Second, &RootOptions{Format: "text", Config: path})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "feed closed")
}

func TestRun_RequiresCallsign(t *testing.T) {
	path := writeConfig(t, "clusters: rbn\n")
	t.Setenv("SKIMMER_CALLSIGN", "")

	_, _, err := runFor(t, time.Second, &RootOptions{Format: "text", Config: path})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "callsign")
}

func TestRun_UnknownClusterFlag(t *testing.T) {
	path := writeConfig(t, "callsign: k7mjg\n")

	_, _, err := runFor(t, time.Second, &RootOptions{Format: "text", Config: path}, "--clusters", "rbn,nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "NOWHERE")
}

func TestRun_MetricsBindFailure(t *testing.T) {
	path := writeConfig(t, "callsign: k7mjg\n")

	_, _, err := runFor(t, time.Second, &RootOptions{Format: "text", Config: path}, "--metrics-addr", "127.0.0.1:99999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "metrics")
}

func TestRun_PrunesOldSpotsAtStartup(t *testing.T) {
	dbPath := seedStore(t) // spots from 2015
	addr := feedServer(t, true, spotLine(nil))
	path := runConfig(t, addr, "store:\n  retention: 24h\n")

	_, _, err := runFor(t, 500*time.Millisecond, &RootOptions{Format: "text", Config: path}, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	spots, err := st.ReadSpots(context.Background(), store.SpotQuery{})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "run-1", spots[0].SessionID)
}
