package worker

import (
	"fmt"
	"strings"

	v3 "mercator-hq/saturn/pkg/protocol/v3"
)

const (
	severityError   = "error"
	severityWarning = "warning"
)

// analyzeFile runs the cheap structural checks. These are the checks a
// router-side editor surfaces immediately, not a compiler.
func analyzeFile(path, text string) []v3.Diagnostic {
	var out []v3.Diagnostic

	depth := 0
	lineNo := uint32(0)
	sawPackage := false
	for line := range strings.Lines(text) {
		lineNo++
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			sawPackage = true
		}
		for _, r := range line {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
				if depth < 0 {
					out = append(out, v3.Diagnostic{
						Path:     path,
						Line:     lineNo,
						Severity: severityError,
						Message:  "unmatched closing brace",
					})
					depth = 0
				}
			}
		}
	}
	if depth > 0 {
		out = append(out, v3.Diagnostic{
			Path:     path,
			Line:     lineNo,
			Severity: severityError,
			Message:  fmt.Sprintf("%d unclosed brace(s) at end of file", depth),
		})
	}
	if !sawPackage {
		out = append(out, v3.Diagnostic{
			Path:     path,
			Line:     1,
			Severity: severityWarning,
			Message:  "missing package declaration",
		})
	}
	return out
}
