package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusters_Text(t *testing.T) {
	cfg := writeConfig(t, "clusters: localhost_master, rbn\ncatalog:\n  lab: [\"10.0.0.5:7300\"]\n")

	out, _, err := execute(context.Background(), NewClustersCommand(&RootOptions{Format: "text", Config: cfg}))
	require.NoError(t, err)

	assert.Contains(t, out, "LAB")
	assert.Contains(t, out, "10.0.0.5:7300")
	assert.Contains(t, out, "1.  LOCALHOST_MASTER   127.0.0.1:50000 127.0.0.1:50001 127.0.0.1:50002")
	assert.Contains(t, out, "2.  RBN")
	assert.Contains(t, out, "Selection: LOCALHOST_MASTER → RBN")
}

func TestClusters_JSONWithSelectionFlag(t *testing.T) {
	cfg := writeConfig(t, "callsign: k7mjg\n")

	out, _, err := execute(context.Background(), NewClustersCommand(&RootOptions{Format: "json", Config: cfg}), "--clusters", "localhost_slave rbn")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ClustersResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"LOCALHOST_SLAVE", "RBN"}, resp.Data.Selection)

	orders := map[string]int{}
	for _, c := range resp.Data.Clusters {
		orders[c.Name] = c.Order
	}
	assert.Equal(t, map[string]int{"LOCALHOST_MASTER": 0, "LOCALHOST_SLAVE": 1, "RBN": 2}, orders)
}

func TestClusters_UnknownSelection(t *testing.T) {
	cfg := writeConfig(t, "callsign: k7mjg\n")

	out, _, err := execute(context.Background(), NewClustersCommand(&RootOptions{Format: "text", Config: cfg}), "--clusters", "mars")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `unknown cluster "MARS"`)
}
