// Package pytrace parses Python tracebacks out of raw process output and
// maps the implicated frames back onto bundle-relative file paths.
package pytrace

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	frameRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	errRe   = regexp.MustCompile(`(?m)^([A-Za-z_][A-Za-z0-9_]*(?:Error|Exception)): (.+)$`)
)

// Frame is one traceback stack entry
type Frame struct {
	Path string
	Line int
}

// Diagnosis is the parsed tail of a traceback: the raised error plus the
// frames leading to it, innermost last.
type Diagnosis struct {
	ErrType string
	Message string
	Frames  []Frame
}

// Parse extracts the last traceback from raw output. Returns nil when no
// `<error-type>: <message>` line is present.
func Parse(output string) *Diagnosis {
	errMatches := errRe.FindAllStringSubmatch(output, -1)
	if len(errMatches) == 0 {
		return nil
	}
	last := errMatches[len(errMatches)-1]

	d := &Diagnosis{ErrType: last[1], Message: strings.TrimSpace(last[2])}
	for _, m := range frameRe.FindAllStringSubmatch(output, -1) {
		line, _ := strconv.Atoi(m[2])
		d.Frames = append(d.Frames, Frame{Path: m[1], Line: line})
	}
	return d
}

// Implicate returns the bundle-relative path of the innermost frame that
// belongs to the bundle, or "" when no frame does. Absolute workspace
// paths are matched by suffix against the bundle's relative paths.
func (d *Diagnosis) Implicate(bundlePaths []string) (string, int) {
	for i := len(d.Frames) - 1; i >= 0; i-- {
		frame := d.Frames[i]
		if rel := matchBundlePath(frame.Path, bundlePaths); rel != "" {
			return rel, frame.Line
		}
	}
	return "", 0
}

func matchBundlePath(framePath string, bundlePaths []string) string {
	norm := strings.ReplaceAll(framePath, "\\", "/")
	for _, rel := range bundlePaths {
		if norm == rel || strings.HasSuffix(norm, "/"+rel) {
			return rel
		}
	}
	return ""
}

// Summary renders the diagnosis as `<error-type>: <message>`
func (d *Diagnosis) Summary() string {
	return d.ErrType + ": " + d.Message
}
