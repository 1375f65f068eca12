package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skimmer/internal/testutil"
)

// writeConfig writes body as skimmer.yaml in a fresh temp dir.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skimmer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(ctx context.Context, cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func spotLine(mut func(*testutil.SpotLine)) string {
	l := testutil.DefaultSpotLine()
	if mut != nil {
		mut(&l)
	}
	return l.String()
}

// capture joins lines with LF, the way a saved capture usually looks.
func capture(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
