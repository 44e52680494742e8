package blender

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "python fence",
			raw:  "Here you go:\n```python\nimport bpy\nbuild()\n```\nDone.",
			want: "import bpy\nbuild()",
		},
		{
			name: "bare fence",
			raw:  "```\nimport bpy\n```",
			want: "import bpy",
		},
		{
			name: "no fence",
			raw:  "  import bpy\n",
			want: "import bpy",
		},
		{
			name: "unterminated fence",
			raw:  "```python\nimport bpy",
			want: "import bpy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.raw))
		})
	}
}

func TestStripMainGuard(t *testing.T) {
	code := "def build():\n    pass\n\nif __name__ == \"__main__\":\n    build()"
	out := StripMainGuard(code)
	assert.NotContains(t, out, "__main__")
	assert.Contains(t, out, "def build():")

	// Single quotes work too.
	code = "if __name__ == '__main__':\n    build()"
	assert.NotContains(t, StripMainGuard(code), "__main__")
}

func TestExtractModules(t *testing.T) {
	code := strings.Join([]string{
		"import bmesh",
		"def build_band(radius):",
		"    pass",
		"def build_prongs():",
		"    pass",
		"def build():",
		"    pass",
		"def _safe_face(bm, verts):",
		"    pass",
	}, "\n")

	assert.Equal(t, []string{"build_band", "build_prongs"}, ExtractModules(code))
}

func TestPreprocessCodeWrapsFaceCreation(t *testing.T) {
	code := "import bmesh\n\nbm.faces.new([v1, v2, v3])\n"
	out := PreprocessCode(code)

	assert.Contains(t, out, "_safe_face(bm, [v1, v2, v3])")
	assert.NotContains(t, out, "bm.faces.new([v1, v2, v3])")
	// Helper lands after the import block.
	assert.Less(t, strings.Index(out, "import bmesh"), strings.Index(out, "def _safe_face"))
}

func TestAssembleScript(t *testing.T) {
	script := AssembleScript("def build():\n    pass", "/tmp/out/model.glb")

	assert.Contains(t, script, "[PIPELINE] Scene cleared")
	assert.Contains(t, script, "def _safe_face")
	assert.Contains(t, script, `r"/tmp/out/model.glb"`)
	assert.Contains(t, script, "export_scene.gltf")
	// Preamble before user code before trailer.
	assert.Less(t, strings.Index(script, "AUTO SCENE CLEAR"), strings.Index(script, "def build():"))
	assert.Less(t, strings.Index(script, "def build():"), strings.Index(script, "AUTO BUILD + EXPORT"))
}

func TestExtractSpatialReport(t *testing.T) {
	stdout := "noise\n===SPATIAL_REPORT_START===\nMESH: Band\n  Geometry: 8 verts\n===SPATIAL_REPORT_END===\ntail"
	assert.Equal(t, "MESH: Band\n  Geometry: 8 verts", ExtractSpatialReport(stdout))
	assert.Equal(t, "", ExtractSpatialReport("no report here"))
	assert.Equal(t, "", ExtractSpatialReport("===SPATIAL_REPORT_START=== only"))
}
