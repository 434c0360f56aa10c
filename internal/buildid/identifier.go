package buildid

import "fmt"

// Identifier distinguishes one build from the others in a composite session.
// Assigned once when the build is registered and never changed.
type Identifier interface {
	fmt.Stringer

	// BuildName is the name the build is addressed by from the outside.
	BuildName() string

	// IsCurrentBuild reports whether the identified build is the one the
	// identifier is being evaluated in.
	IsCurrentBuild() bool
}

// ID identifies a build from its own perspective.
type ID struct {
	name string
}

// NewID creates the identifier an included build is registered under.
func NewID(name string) ID {
	return ID{name: name}
}

func (id ID) BuildName() string    { return id.name }
func (id ID) IsCurrentBuild() bool { return true }
func (id ID) String() string       { return "build '" + id.name + "'" }

// ForeignID is the cross-build-safe view of a build identifier. It carries
// the build name only; IsCurrentBuild is false even when evaluated from
// inside the identified build's own context, so a consuming build can never
// mistake a producer's identifier for its own.
type ForeignID struct {
	idName    string
	buildName string
}

// NewForeignID creates a foreign identifier from the registered identifier
// name and the resolved build name.
func NewForeignID(idName, buildName string) ForeignID {
	return ForeignID{idName: idName, buildName: buildName}
}

func (id ForeignID) BuildName() string    { return id.buildName }
func (id ForeignID) IsCurrentBuild() bool { return false }
func (id ForeignID) String() string       { return "build '" + id.buildName + "'" }

// IDName is the name of the identifier itself, which may differ from the
// resolved build name when the build's settings rename the root project.
func (id ForeignID) IDName() string { return id.idName }
