package definition

import (
	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/component"
)

// Project describes one project of a build: its path within the build and,
// when the project publishes anything, its external module coordinate.
type Project struct {
	Path       buildid.Path
	Name       string
	Coordinate *component.ModuleCoordinate
}

// Task declares a task of a build, addressed by its qualified path.
type Task struct {
	Path        string
	DependsOn   []string
	Description string
}

// Substitution redirects a version-less module coordinate ("group:module")
// to resolve against a project of this build instead.
type Substitution struct {
	Module      string
	ProjectPath buildid.Path
}

// Include declares a nested build incorporated into a composite root.
type Include struct {
	Name     string
	Dir      string
	Implicit bool
}

// Definition is the immutable descriptor a launcher is constructed from.
type Definition struct {
	rootDir       string
	buildName     string
	projects      []Project
	tasks         []Task
	substitutions []Substitution
	includes      []Include
}

// New assembles a Definition. The input slices are copied, so the caller may
// keep and reuse them.
func New(rootDir, buildName string, projects []Project, tasks []Task, substitutions []Substitution, includes []Include) *Definition {
	return &Definition{
		rootDir:       rootDir,
		buildName:     buildName,
		projects:      append([]Project(nil), projects...),
		tasks:         append([]Task(nil), tasks...),
		substitutions: append([]Substitution(nil), substitutions...),
		includes:      append([]Include(nil), includes...),
	}
}

// RootDir is the directory the build's settings were loaded from.
func (d *Definition) RootDir() string { return d.rootDir }

// BuildName is the name declared in the settings' build block.
func (d *Definition) BuildName() string { return d.buildName }

// Projects returns the declared projects in declaration order.
func (d *Definition) Projects() []Project {
	return append([]Project(nil), d.projects...)
}

// Tasks returns the declared tasks in declaration order.
func (d *Definition) Tasks() []Task {
	return append([]Task(nil), d.tasks...)
}

// Substitutions returns the substitutions declared in the settings file.
func (d *Definition) Substitutions() []Substitution {
	return append([]Substitution(nil), d.substitutions...)
}

// Includes returns the nested builds declared by a composite root.
func (d *Definition) Includes() []Include {
	return append([]Include(nil), d.includes...)
}

// ProjectAt looks up a declared project by its path.
func (d *Definition) ProjectAt(path buildid.Path) (Project, bool) {
	for _, p := range d.projects {
		if p.Path.Equal(path) {
			return p, true
		}
	}
	return Project{}, false
}

// Settings is the view of a build's loaded settings the orchestrator needs:
// the root project name and where the build hangs in the composite tree.
// ParentIdentityPath is nil when the build sits directly under the top build.
type Settings struct {
	RootProjectName    string
	ParentIdentityPath *buildid.Path
	Projects           []Project
}
