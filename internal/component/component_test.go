package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/compobuild/internal/buildid"
)

func TestModuleCoordinate(t *testing.T) {
	c := ModuleCoordinate{Group: "com.acme", Module: "lib", Version: "1.0.0"}

	assert.Equal(t, "com.acme:lib:1.0.0", c.String())
	assert.Equal(t, "com.acme:lib", c.GroupModule())
}

func TestProjectIDDisplayName(t *testing.T) {
	path := buildid.MustParsePath(":lib")

	local := ProjectID{
		Build:        buildid.NewID("child"),
		IdentityPath: buildid.MustParsePath(":child:lib"),
		ProjectPath:  path,
		ProjectName:  "lib",
	}
	assert.Equal(t, "project :lib", local.DisplayName())

	foreign := local
	foreign.Build = buildid.NewForeignID("child", "child")
	assert.Equal(t, "project :lib in build 'child'", foreign.DisplayName())
}

func TestMapRegistry(t *testing.T) {
	r := NewMapRegistry()
	path := buildid.MustParsePath(":lib")

	_, ok := r.ComponentFor(path)
	assert.False(t, ok)

	meta := Metadata{Coordinate: ModuleCoordinate{Group: "com.acme", Module: "lib", Version: "2.1"}}
	r.Register(path, meta)

	got, ok := r.ComponentFor(path)
	assert.True(t, ok)
	assert.Equal(t, meta, got)

	// Re-registering replaces the previous entry.
	r.Register(path, Metadata{Coordinate: ModuleCoordinate{Group: "com.acme", Module: "lib", Version: "3.0"}})
	got, _ = r.ComponentFor(path)
	assert.Equal(t, "3.0", got.Coordinate.Version)
}
