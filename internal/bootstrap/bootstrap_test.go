package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
)

func newTestRunner(t *testing.T, commands ...string) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	marker := filepath.Join(dir, "state", ".bootstrap-done")
	r := NewRunner(config.BootstrapConfig{
		Commands: commands,
		Marker:   marker,
		Timeout:  5 * time.Second,
	}, zaptest.NewLogger(t))
	return r, marker
}

func TestRunWritesMarker(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r, marker := newTestRunner(t, "echo one > "+out, "echo two >> "+out)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Len(t, report.Results, 2)
	assert.FileExists(t, marker)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestRunSkipsWhenMarkerExists(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r, marker := newTestRunner(t, "echo ran > "+out)
	require.NoError(t, os.MkdirAll(filepath.Dir(marker), 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("done"), 0o644))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.NoFileExists(t, out)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r, marker := newTestRunner(t, "echo broken >&2; exit 3", "echo after > "+out)

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrCommandsFailed)

	require.Len(t, report.Results, 2)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Output, "broken")
	assert.FileExists(t, out)
	assert.NoFileExists(t, marker)
}

func TestRunTimeout(t *testing.T) {
	r, _ := newTestRunner(t, "sleep 5")
	r.timeout = 50 * time.Millisecond

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrCommandsFailed)
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, context.DeadlineExceeded)
}

func TestRunNoCommands(t *testing.T) {
	r, marker := newTestRunner(t)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.NoFileExists(t, marker)
}
