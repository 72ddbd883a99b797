package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"mercator-hq/saturn/pkg/protocol"
)

// SourceRoot is one shard's directory subtree.
type SourceRoot struct {
	// Path is the root directory, cleaned and absolute or
	// workspace-relative, but consistently one or the other across the
	// layout.
	Path string
}

// Layout is the ordered list of source roots. The order is significant:
// shard i serves Roots[i], and the layout must be identical on router
// and workers for ids to line up.
type Layout struct {
	Roots []SourceRoot
}

// NewLayout builds a layout from root paths, cleaning each.
func NewLayout(roots ...string) (*Layout, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("layout needs at least one source root")
	}
	l := &Layout{Roots: make([]SourceRoot, 0, len(roots))}
	seen := make(map[string]bool, len(roots))
	for _, r := range roots {
		clean := filepath.Clean(r)
		if seen[clean] {
			return nil, fmt.Errorf("duplicate source root %q", clean)
		}
		seen[clean] = true
		l.Roots = append(l.Roots, SourceRoot{Path: clean})
	}
	return l, nil
}

// NumShards returns the shard count.
func (l *Layout) NumShards() int { return len(l.Roots) }

// ShardIDs returns every shard id in order.
func (l *Layout) ShardIDs() []protocol.ShardID {
	out := make([]protocol.ShardID, len(l.Roots))
	for i := range l.Roots {
		out[i] = protocol.ShardID(i)
	}
	return out
}

// ShardForPath maps a file path to its owning shard by longest matching
// root prefix. Files under no root belong to no shard.
func (l *Layout) ShardForPath(path string) (protocol.ShardID, bool) {
	clean := filepath.Clean(path)
	best := -1
	bestLen := -1
	for i, root := range l.Roots {
		if !underRoot(clean, root.Path) {
			continue
		}
		if len(root.Path) > bestLen {
			best = i
			bestLen = len(root.Path)
		}
	}
	if best < 0 {
		return 0, false
	}
	return protocol.ShardID(best), true
}

func underRoot(path, root string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	// Prefix match must end on a path boundary: "src2/A.java" is not
	// under root "src".
	return path[len(root)] == filepath.Separator
}
