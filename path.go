package minimact

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a structural path: the ordered sequence of child indices from the
// tree root to a node. Paths are the shared addressing scheme between the
// extractor, the predictor, the reconciler and the patch applier: two trees
// built from the same template structure address the same logical position
// with the same path.
type Path []int

// RootPath addresses the tree root.
func RootPath() Path { return Path{} }

// Child returns a new path extended by one child index.
func (p Path) Child(index int) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = index
	return child
}

// Parent returns the path with the last segment removed, and false for the
// root path.
func (p Path) Parent() (Path, bool) {
	if len(p) == 0 {
		return nil, false
	}
	parent := make(Path, len(p)-1)
	copy(parent, p[:len(p)-1])
	return parent, true
}

// Last returns the final child index, or -1 for the root path.
func (p Path) Last() int {
	if len(p) == 0 {
		return -1
	}
	return p[len(p)-1]
}

// Equal reports whether two paths address the same position.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether o is an ancestor-or-equal of p.
func (p Path) HasPrefix(o Path) bool {
	if len(o) > len(p) {
		return false
	}
	for i := range o {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// String encodes the path as dot-separated indices, e.g. "0.2.1". The root
// path encodes as the empty string. This is the key format of persisted
// template documents.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// ParsePath decodes a dot-separated path string.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return RootPath(), nil
	}
	parts := strings.Split(s, ".")
	path := make(Path, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid path segment %q in %q", part, s)
		}
		path[i] = idx
	}
	return path, nil
}
