// Package component models the externally visible coordinates of the
// projects inside a build, and the registry the orchestrator queries to pair
// a project with the module it can substitute for.
package component

import (
	"fmt"

	"github.com/vk/compobuild/internal/buildid"
)

// ModuleCoordinate is the external module identity a project publishes as,
// e.g. "com.acme:lib:1.0.0".
type ModuleCoordinate struct {
	Group   string
	Module  string
	Version string
}

func (c ModuleCoordinate) String() string {
	return fmt.Sprintf("%s:%s:%s", c.Group, c.Module, c.Version)
}

// GroupModule is the version-less coordinate used when matching substitution
// requests.
func (c ModuleCoordinate) GroupModule() string {
	return c.Group + ":" + c.Module
}

// ProjectID identifies one project component, scoped to the build it lives
// in. The build component carries which build's perspective the identifier
// was minted from.
type ProjectID struct {
	Build        buildid.Identifier
	IdentityPath buildid.Path
	ProjectPath  buildid.Path
	ProjectName  string
}

// DisplayName renders the identifier the way it appears in dependency
// reports.
func (id ProjectID) DisplayName() string {
	if id.Build != nil && !id.Build.IsCurrentBuild() {
		return fmt.Sprintf("project %s in %s", id.ProjectPath, id.Build)
	}
	return fmt.Sprintf("project %s", id.ProjectPath)
}

// Metadata is the externally visible component metadata of a project, if the
// project publishes any.
type Metadata struct {
	Coordinate ModuleCoordinate
}

// Registry exposes the externally visible component metadata for a project.
// Implemented by the build engine around the orchestrator; a project without
// published coordinates reports ok=false.
type Registry interface {
	ComponentFor(projectPath buildid.Path) (Metadata, bool)
}
