package buildid

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator is the path separator for identity paths and task paths.
const Separator = ":"

// segmentRegex validates a single path segment, e.g. `lib` or `my-build_2`.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Path is the immutable, hierarchical identity path of a build or project in
// the composite tree. The zero value is the root path.
type Path struct {
	segments []string
}

// Root is the root identity path, ":".
var Root = Path{}

// ParsePath creates a Path from its canonical string representation. The
// string must be fully qualified, i.e. begin with the separator.
func ParsePath(raw string) (Path, error) {
	if !strings.HasPrefix(raw, Separator) {
		return Path{}, fmt.Errorf("path %q is not a qualified path (must begin with '%s')", raw, Separator)
	}
	if raw == Separator {
		return Root, nil
	}
	segments := strings.Split(raw[1:], Separator)
	for _, segment := range segments {
		if segment == "" {
			return Path{}, fmt.Errorf("path %q contains an empty segment", raw)
		}
		if !segmentRegex.MatchString(segment) {
			return Path{}, fmt.Errorf("invalid path segment %q in %q", segment, raw)
		}
	}
	return Path{segments: segments}, nil
}

// MustParsePath is ParsePath for statically known paths; it panics on error.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String serializes the path into its canonical ":a:b" form.
func (p Path) String() string {
	if len(p.segments) == 0 {
		return Separator
	}
	return Separator + strings.Join(p.segments, Separator)
}

// IsRoot reports whether this is the root path.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Name returns the last segment of the path, or "" for the root path.
func (p Path) Name() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns the path with the last segment removed. The parent of the
// root path is the root path.
func (p Path) Parent() Path {
	if len(p.segments) == 0 {
		return Root
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Child returns a new path with the given segment appended. The receiver is
// not modified.
func (p Path) Child(name string) Path {
	segments := make([]string, 0, len(p.segments)+1)
	segments = append(segments, p.segments...)
	segments = append(segments, name)
	return Path{segments: segments}
}

// Append returns the concatenation of this path and the other path.
func (p Path) Append(other Path) Path {
	if other.IsRoot() {
		return p
	}
	segments := make([]string, 0, len(p.segments)+len(other.segments))
	segments = append(segments, p.segments...)
	segments = append(segments, other.segments...)
	return Path{segments: segments}
}

// Equal checks for equality between two paths.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, segment := range p.segments {
		if segment != other.segments[i] {
			return false
		}
	}
	return true
}
