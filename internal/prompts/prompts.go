// Package prompts builds the generation and error-fix prompts sent to the
// code-generation models.
package prompts

import (
	"fmt"
	"os"
	"strings"
)

// DefaultGeneration is used when a request carries no text prompt (image
// only).
const DefaultGeneration = "Generate a classic solitaire diamond ring."

// LoadMaster reads the master system prompt from disk.
func LoadMaster(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load master prompt: %w", err)
	}
	return string(data), nil
}

// Generation wraps the user's request with geometry reminders.
func Generation(userPrompt string) string {
	return userPrompt + `

REMINDERS:
- The head/setting grows directly from the band's top — they are ONE connected piece.
- Gems sit INSIDE their settings, not floating. Prongs grip the gem, not pass through it.
- All build_* functions share the same dimension variables so parts line up.
- Use modifiers generously (Bevel, Subsurf, etc.) for quality.
- No materials, no cameras, no lights. Output ONLY geometry code.`
}

// Fix asks the model to repair a crashed script, optionally with the
// spatial report from the previous attempt.
func Fix(code, errorText, spatialReport string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `This Blender Python script crashed. Your job: find the ROOT CAUSE and fix it in ONE attempt.

SCRIPT:
`+"```python\n%s\n```"+`

ERROR:
%s
`, code, errorText)

	if spatialReport != "" {
		if len(spatialReport) > 3000 {
			spatialReport = spatialReport[:3000]
		}
		fmt.Fprintf(&b, `
SPATIAL CONTEXT (from previous attempt):
%s

This spatial data shows the mesh positions, bounds, and geometry from the last attempt.
Use this to understand where meshes are positioned and how they relate to each other.
`, spatialReport)
	}

	b.WriteString(`
DIAGNOSIS STEPS:
1. Read the error traceback — identify the exact line and function that failed.
2. Classify the error:
   - SYNTAX: missing colon, unmatched parenthesis, indentation error → fix the syntax
   - GEOMETRY: face creation failed, empty mesh, degenerate face → fix vertex positions or face winding
   - API: attribute not found, deprecated method → use correct Blender 5.0 API
   - TOPOLOGY: index out of range, bmesh freed → fix vert/face references, add ensure_lookup_table()
   - LOGIC: division by zero, wrong variable, missing import → fix the computation or add import

FIX RULES:
1. Fix ONLY the specific error. Change the MINIMUM number of lines to resolve it.
2. Keep ALL function signatures identical. Keep ALL other functions unchanged.
2.1 keep every other thing line of code 100% same
3. Preserve the exact same ring geometry — only fix what's broken.
4. ONLY bmesh geometry (no bpy.ops.mesh, no bpy.ops.transform).
5. NO materials, NO lighting, NO scene setup.
6. Verify your fix: mentally trace the execution to confirm the error is resolved.
7. Return ONLY Python code. No explanations. No markdown fences.`)

	return b.String()
}
