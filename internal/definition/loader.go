package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/component"
)

// SettingsFileName is the file looked up when a directory is given to Load.
const SettingsFileName = "settings.hcl"

// settingsRoot decodes the top-level blocks of a settings file.
type settingsRoot struct {
	Build       *buildBlock        `hcl:"build,block"`
	Projects    []*projectBlock    `hcl:"project,block"`
	Tasks       []*taskBlock       `hcl:"task,block"`
	Substitutes []*substituteBlock `hcl:"substitute,block"`
	Includes    []*includeBlock    `hcl:"include,block"`
}

type buildBlock struct {
	Name string `hcl:"name"`
}

type projectBlock struct {
	Path    string `hcl:"path,label"`
	Name    string `hcl:"name,optional"`
	Group   string `hcl:"group,optional"`
	Module  string `hcl:"module,optional"`
	Version string `hcl:"version,optional"`
}

type taskBlock struct {
	Path        string   `hcl:"path,label"`
	DependsOn   []string `hcl:"depends_on,optional"`
	Description string   `hcl:"description,optional"`
}

type substituteBlock struct {
	Module  string `hcl:"module"`
	Project string `hcl:"project"`
}

type includeBlock struct {
	Name     string `hcl:"name,label"`
	Dir      string `hcl:"dir"`
	Implicit bool   `hcl:"implicit,optional"`
}

// Loader parses build settings files into immutable Definitions.
type Loader struct{}

// NewLoader creates a new settings loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the settings of a build. The path may be the settings file
// itself or the build's root directory containing a settings.hcl.
func (l *Loader) Load(path string) (*Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("settings path %s: %w", path, err)
	}

	settingsFile := path
	rootDir := filepath.Dir(path)
	if info.IsDir() {
		settingsFile = filepath.Join(path, SettingsFileName)
		rootDir = path
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(settingsFile)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", settingsFile, diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"root_dir":       cty.StringVal(rootDir),
			"path_separator": cty.StringVal(buildid.Separator),
		},
	}

	var root settingsRoot
	if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", settingsFile, diags)
	}

	return l.translate(rootDir, settingsFile, &root)
}

func (l *Loader) translate(rootDir, settingsFile string, root *settingsRoot) (*Definition, error) {
	if root.Build == nil || root.Build.Name == "" {
		return nil, fmt.Errorf("%s: missing build block with a name", settingsFile)
	}

	projects := make([]Project, 0, len(root.Projects))
	for _, pb := range root.Projects {
		path, err := buildid.ParsePath(pb.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: project %q: %w", settingsFile, pb.Path, err)
		}
		name := pb.Name
		if name == "" {
			name = path.Name()
		}
		p := Project{Path: path, Name: name}
		switch {
		case pb.Group != "" && pb.Module != "" && pb.Version != "":
			p.Coordinate = &component.ModuleCoordinate{Group: pb.Group, Module: pb.Module, Version: pb.Version}
		case pb.Group == "" && pb.Module == "" && pb.Version == "":
			// Project publishes nothing.
		default:
			return nil, fmt.Errorf("%s: project %q: group, module and version must be set together", settingsFile, pb.Path)
		}
		projects = append(projects, p)
	}

	tasks := make([]Task, 0, len(root.Tasks))
	for _, tb := range root.Tasks {
		if !strings.HasPrefix(tb.Path, buildid.Separator) {
			return nil, fmt.Errorf("%s: task path %q is not a qualified task path", settingsFile, tb.Path)
		}
		tasks = append(tasks, Task{Path: tb.Path, DependsOn: append([]string(nil), tb.DependsOn...), Description: tb.Description})
	}

	substitutions := make([]Substitution, 0, len(root.Substitutes))
	for _, sb := range root.Substitutes {
		projectPath, err := buildid.ParsePath(sb.Project)
		if err != nil {
			return nil, fmt.Errorf("%s: substitute %q: %w", settingsFile, sb.Module, err)
		}
		if !hasProject(projects, projectPath) {
			return nil, fmt.Errorf("%s: substitute %q targets undeclared project %s", settingsFile, sb.Module, projectPath)
		}
		substitutions = append(substitutions, Substitution{Module: sb.Module, ProjectPath: projectPath})
	}

	includes := make([]Include, 0, len(root.Includes))
	for _, ib := range root.Includes {
		dir := ib.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(rootDir, dir)
		}
		includes = append(includes, Include{Name: ib.Name, Dir: dir, Implicit: ib.Implicit})
	}

	return New(rootDir, root.Build.Name, projects, tasks, substitutions, includes), nil
}

func hasProject(projects []Project, path buildid.Path) bool {
	for _, p := range projects {
		if p.Path.Equal(path) {
			return true
		}
	}
	return false
}
