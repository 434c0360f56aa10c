package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/compobuild/internal/buildid"
	"github.com/vk/compobuild/internal/component"
	"github.com/vk/compobuild/internal/ctxlog"
	"github.com/vk/compobuild/internal/definition"
	"github.com/vk/compobuild/internal/included"
	"github.com/vk/compobuild/internal/launcher"
	"github.com/vk/compobuild/internal/lease"
	"github.com/vk/compobuild/internal/metrics"
)

// rootOwner is the top build's view of itself: projects of builds included
// directly under the root hang off the root path.
type rootOwner struct{}

func (rootOwner) CurrentChildPrefix() buildid.Path { return buildid.Root }

// App encapsulates the composite build's dependencies, configuration, and
// lifecycle.
type App struct {
	outW        io.Writer
	logger      *slog.Logger
	rootDef     *definition.Definition
	coordinator *lease.Coordinator
	collector   *metrics.Collector
	promReg     *prometheus.Registry
	factory     *launcher.EngineFactory
	rootLease   *lease.Lease

	builds map[string]*included.Build
	order  []string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and metrics
// registry. runner may be nil, in which case tasks only log their execution.
func NewApp(outW io.Writer, appConfig *Config, loader *definition.Loader, runner launcher.TaskRunner) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	rootDef, err := loader.Load(appConfig.SettingsPath)
	if err != nil {
		// A failure to load settings is a fatal startup error.
		panic(fmt.Errorf("failed to load settings: %w", err))
	}
	logger.Debug("Root settings loaded.", "build", rootDef.BuildName(), "includes", len(rootDef.Includes()))

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	coordinator := lease.NewCoordinator(appConfig.WorkerCount)
	coordinator.SetGauge(collector.LeasesInUse)

	// The outer build holds one permit for its lifetime; nested execute
	// cycles share it instead of draining the pool. The pool is fresh, so
	// this acquire never blocks.
	rootLease, err := coordinator.NewLease(ctx)
	if err != nil {
		panic(fmt.Errorf("failed to acquire root worker lease: %w", err))
	}

	a := &App{
		outW:        outW,
		logger:      logger,
		rootDef:     rootDef,
		coordinator: coordinator,
		collector:   collector,
		promReg:     promReg,
		factory:     launcher.NewEngineFactory(runner, appConfig.WorkerCount),
		rootLease:   rootLease,
		builds:      make(map[string]*included.Build),
	}

	// Register every included build declared by the root settings.
	for _, inc := range rootDef.Includes() {
		build, err := a.registerInclude(ctx, loader, inc)
		if err != nil {
			panic(fmt.Errorf("failed to register included build '%s': %w", inc.Name, err))
		}
		a.builds[inc.Name] = build
		a.order = append(a.order, inc.Name)
	}
	logger.Debug("All included builds registered.", "count", len(a.order))

	return a
}

func (a *App) registerInclude(ctx context.Context, loader *definition.Loader, inc definition.Include) (*included.Build, error) {
	childDef, err := loader.Load(inc.Dir)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Loaded included build settings.",
		"build", inc.Name, "dir", inc.Dir, "implicit", inc.Implicit)

	// Every project of the nested build gets component metadata: its declared
	// coordinate, or a synthesized one when the settings publish nothing.
	components := component.NewMapRegistry()
	for _, project := range childDef.Projects() {
		coord := project.Coordinate
		if coord == nil {
			coord = &component.ModuleCoordinate{
				Group:   childDef.BuildName(),
				Module:  project.Name,
				Version: "unspecified",
			}
		}
		components.Register(project.Path, component.Metadata{Coordinate: *coord})
	}

	return included.NewBuild(included.Config{
		ID:           buildid.NewID(inc.Name),
		IdentityPath: buildid.Root.Child(inc.Name),
		Definition:   childDef,
		Implicit:     inc.Implicit,
		Owner:        rootOwner{},
		ParentLease:  a.rootLease,
		Factory:      a.factory,
		Coordinator:  a.coordinator,
		Components:   components,
		Collector:    a.collector,
	})
}

// Build returns a registered included build by name. This is primarily for
// testing.
func (a *App) Build(name string) (*included.Build, bool) {
	b, ok := a.builds[name]
	return b, ok
}

// Builds returns the registered included builds in declaration order.
func (a *App) Builds() []*included.Build {
	out := make([]*included.Build, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.builds[name])
	}
	return out
}

// Gatherer exposes the app's metrics registry, for scraping or inspection.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.promReg
}
