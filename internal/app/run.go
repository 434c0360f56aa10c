package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/compobuild/internal/ctxlog"
)

// Run executes the requested tasks in the named included build. Run is
// single-use: every registered build is stopped and the root worker lease is
// returned to the pool before it returns.
func (a *App) Run(ctx context.Context, appConfig *Config) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	defer func() {
		for _, name := range a.order {
			if stopErr := a.builds[name].Stop(); stopErr != nil {
				err = errors.Join(err, fmt.Errorf("stopping included build '%s': %w", name, stopErr))
			}
		}
		if releaseErr := a.rootLease.Release(); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		a.logger.Debug("App.Run method finished.")
	}()

	if len(a.order) == 0 {
		a.logger.Warn("Root settings declare no included builds, execution not required.")
		return nil
	}

	buildName := appConfig.Build
	if buildName == "" {
		buildName = a.order[0]
	}
	build, ok := a.builds[buildName]
	if !ok {
		return fmt.Errorf("no included build named '%s' in build '%s'", buildName, a.rootDef.BuildName())
	}

	if len(appConfig.Tasks) == 0 {
		a.logger.Warn("No tasks requested, execution not required.", "build", buildName)
		return nil
	}

	a.logger.Info("Starting composite build execution.", "build", buildName, "tasks", appConfig.Tasks)
	if execErr := build.Execute(ctx, appConfig.Tasks, nil); execErr != nil {
		return fmt.Errorf("execution failed: %w", execErr)
	}
	build.FinishBuild(ctx)
	a.logger.Info("Composite build execution finished.", "build", buildName)
	return nil
}
