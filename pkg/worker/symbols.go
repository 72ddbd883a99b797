package worker

import (
	"regexp"
	"sort"
	"strings"

	"mercator-hq/saturn/pkg/protocol"
)

// The extractor is a line-oriented scan, not a parser. It finds the
// declarations a symbol search cares about (types and methods) and
// tolerates everything else.
var (
	typeDeclPattern = regexp.MustCompile(`\b(?:class|interface|enum|record)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

	// A method declaration: optional modifiers, a return type, a name,
	// an opening parenthesis. Constructors match too since their "return
	// type" position holds the class name.
	methodDeclPattern = regexp.MustCompile(`^\s*(?:(?:public|protected|private|static|final|abstract|synchronized|native|strictfp|default)\s+)*(?:<[^>]{0,128}>\s*)?[A-Za-z_$][A-Za-z0-9_$.<>\[\], ]*\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
)

// Control-flow keywords that land in the method-name capture group when a
// statement happens to look like a declaration.
var notMethodNames = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "return": true, "new": true, "throw": true,
	"else": true, "do": true, "try": true, "synchronized": true,
}

// ExtractSymbols scans one file's text for Java declarations. Results are
// unordered; the caller merges and sorts across files.
func ExtractSymbols(path, text string) []protocol.Symbol {
	var out []protocol.Symbol
	inBlockComment := false
	for line := range strings.Lines(text) {
		trimmed := strings.TrimSpace(line)
		if inBlockComment {
			if idx := strings.Index(trimmed, "*/"); idx >= 0 {
				inBlockComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		if strings.HasPrefix(trimmed, "/*") && !strings.Contains(trimmed, "*/") {
			inBlockComment = true
			continue
		}
		if m := typeDeclPattern.FindStringSubmatch(trimmed); m != nil {
			out = append(out, protocol.Symbol{Name: m[1], Path: path})
			continue
		}
		if m := methodDeclPattern.FindStringSubmatch(line); m != nil {
			if !notMethodNames[m[1]] {
				out = append(out, protocol.Symbol{Name: m[1], Path: path})
			}
		}
	}
	return out
}

// sortSymbols orders by name then path and drops duplicates in place.
func sortSymbols(symbols []protocol.Symbol) []protocol.Symbol {
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Name != symbols[j].Name {
			return symbols[i].Name < symbols[j].Name
		}
		return symbols[i].Path < symbols[j].Path
	})
	dst := symbols[:0]
	for _, s := range symbols {
		if len(dst) == 0 || dst[len(dst)-1] != s {
			dst = append(dst, s)
		}
	}
	return dst
}
