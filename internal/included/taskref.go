package included

import (
	"strings"

	"github.com/vk/compobuild/internal/buildid"
)

// TaskReference points at a task of an included build without resolving it.
type TaskReference struct {
	build *Build
	path  string
}

// BuildName is the name of the included build the reference is scoped to.
func (r TaskReference) BuildName() string {
	return r.build.id.BuildName()
}

// TaskPath is the qualified task path inside the included build.
func (r TaskReference) TaskPath() string {
	return r.path
}

// Name is the bare task name, the last segment of the path.
func (r TaskReference) Name() string {
	idx := strings.LastIndex(r.path, buildid.Separator)
	return r.path[idx+1:]
}

func (r TaskReference) String() string {
	return "task '" + r.path + "' in " + r.build.id.String()
}
