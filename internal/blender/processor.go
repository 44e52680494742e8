// Package blender runs LLM-generated geometry scripts through headless
// Blender and parses the outcome.
package blender

import (
	"regexp"
	"strings"
)

// safeHelper wraps bm.faces.new() so degenerate faces fail soft instead
// of aborting the whole build.
const safeHelper = `
# ===== AUTO-INJECTED SAFETY =====
def _safe_face(_bm_arg, _verts_arg):
    try:
        if len(_verts_arg) < 3:
            return None
        if len(set(id(v) for v in _verts_arg)) != len(_verts_arg):
            return None
        return _bm_arg.faces.new(_verts_arg)
    except (ValueError, IndexError, TypeError):
        return None
# ===== END SAFETY =====
`

var (
	facesNewRe  = regexp.MustCompile(`(\w+)\.faces\.new\((\[.*?\])\)`)
	mainGuardRe = regexp.MustCompile(`if\s+__name__\s*==\s*["']__main__["']\s*:\s*\n\s*build\(\)`)
)

// PreprocessCode injects the _safe_face helper after the last import and
// rewrites direct bm.faces.new([...]) calls to go through it.
func PreprocessCode(code string) string {
	lines := strings.Split(code, "\n")
	lastImport := 0
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "import ") || strings.HasPrefix(stripped, "from ") {
			lastImport = i
		}
	}
	injected := make([]string, 0, len(lines)+1)
	injected = append(injected, lines[:lastImport+1]...)
	injected = append(injected, safeHelper)
	injected = append(injected, lines[lastImport+1:]...)

	return facesNewRe.ReplaceAllString(strings.Join(injected, "\n"), "_safe_face($1, $2)")
}

// ExtractCode pulls Python source out of markdown fences, or returns the
// trimmed raw text when the model answered without fences.
func ExtractCode(raw string) string {
	if idx := strings.Index(raw, "```python"); idx >= 0 {
		rest := raw[idx+len("```python"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(raw)
}

// skipFunctions are well-known scaffolding helpers that aren't ring parts.
var skipFunctions = map[string]struct{}{
	"nuke": {}, "build": {}, "mk": {}, "quad_bridge": {}, "make_circle_verts": {},
	"set_smooth": {}, "add_subsurf": {}, "add_bevel": {}, "add_solidify": {},
	"ngon": {}, "safe_set": {}, "_safe_face": {},
}

// ExtractModules lists the user-defined geometry functions in the script,
// skipping known utility helpers.
func ExtractModules(code string) []string {
	modules := []string{}
	for _, line := range strings.Split(code, "\n") {
		ls := strings.TrimSpace(line)
		if !strings.HasPrefix(ls, "def ") || !strings.Contains(ls, "(") {
			continue
		}
		name := ls[len("def "):]
		name = name[:strings.Index(name, "(")]
		if _, skip := skipFunctions[name]; !skip {
			modules = append(modules, name)
		}
	}
	return modules
}

// StripMainGuard removes the __main__ guard; build() is invoked by the
// auto-export trailer instead.
func StripMainGuard(code string) string {
	return mainGuardRe.ReplaceAllString(code, "# (build call moved to auto-export section)")
}
