package blender

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeBlender(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-blender.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestRunMissingExecutable(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-blender"), time.Second, slog.New(slog.DiscardHandler))
	assert.False(t, r.Available())

	res := r.Run(context.Background(), "def build():\n    pass", filepath.Join(t.TempDir(), "model.glb"))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ErrorLines)
}

func TestRunParsesOutput(t *testing.T) {
	exe := writeFakeBlender(t, `
echo "[PIPELINE] Scene cleared"
echo "===SPATIAL_REPORT_START==="
echo "MESH: Band"
echo "===SPATIAL_REPORT_END==="
echo "Error: face creation failed" >&2
exit 1
`)
	r := NewRunner(exe, 5*time.Second, slog.New(slog.DiscardHandler))

	res := r.Run(context.Background(), "def build():\n    pass", filepath.Join(t.TempDir(), "model.glb"))

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ReturnCode)
	assert.Contains(t, res.PipelineLog, "[PIPELINE] Scene cleared")
	assert.Equal(t, "MESH: Band", res.SpatialReport)
	assert.Contains(t, res.ErrorLines, "Error: face creation failed")
	assert.False(t, res.GLBExists)
}

func TestRunSuccessRequiresRealGeometry(t *testing.T) {
	exe := writeFakeBlender(t, `echo "[PIPELINE] GLB exported"`)
	r := NewRunner(exe, 5*time.Second, slog.New(slog.DiscardHandler))

	dir := t.TempDir()
	glbPath := filepath.Join(dir, "model.glb")

	// An empty-scene GLB (tiny container) is not success.
	require.NoError(t, os.WriteFile(glbPath, bytes.Repeat([]byte{0}, 172), 0644))
	res := r.Run(context.Background(), "def build():\n    pass", glbPath)
	assert.False(t, res.Success)
	assert.True(t, res.GLBExists)

	// Real geometry clears the size floor.
	require.NoError(t, os.WriteFile(glbPath, bytes.Repeat([]byte{0}, 4096), 0644))
	res = r.Run(context.Background(), "def build():\n    pass", glbPath)
	assert.True(t, res.Success)
	assert.Equal(t, int64(4096), res.GLBSize)
}

func TestRunTimeout(t *testing.T) {
	exe := writeFakeBlender(t, "sleep 10")
	r := NewRunner(exe, 100*time.Millisecond, slog.New(slog.DiscardHandler))

	res := r.Run(context.Background(), "def build():\n    pass", filepath.Join(t.TempDir(), "model.glb"))

	assert.False(t, res.Success)
	assert.Equal(t, []string{"TimeoutExpired"}, res.ErrorLines)
}

func TestErrorLineDetection(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Error: face creation failed", true},
		{"RuntimeError: boolean modifier failed", true},
		{"ERROR (bke.lib_id): duplicate id", true},
		{"Traceback (most recent call last):", true},
		{"[PIPELINE] GLB exported", false},
		{"Blender quit", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isErrorLine(tt.line), tt.line)
	}
}

func TestRunWritesAssembledScript(t *testing.T) {
	exe := writeFakeBlender(t, "exit 0")
	r := NewRunner(exe, 5*time.Second, slog.New(slog.DiscardHandler))

	dir := t.TempDir()
	res := r.Run(context.Background(), "def build():\n    pass", filepath.Join(dir, "model.glb"))

	data, err := os.ReadFile(res.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AUTO SCENE CLEAR")
	assert.Contains(t, string(data), "def build():")
}
