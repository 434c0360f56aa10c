package testutil

import (
	"context"
	"sync/atomic"

	"github.com/vk/compobuild/internal/definition"
	"github.com/vk/compobuild/internal/launcher"
)

// CountingFactory wraps a launcher.Factory and counts handle creations, so
// tests can verify that successive execute cycles use distinct handles.
type CountingFactory struct {
	Inner   launcher.Factory
	created atomic.Int32
	last    atomic.Value // launcher.Launcher
}

// NewCountingFactory wraps the given factory.
func NewCountingFactory(inner launcher.Factory) *CountingFactory {
	return &CountingFactory{Inner: inner}
}

// NewLauncher implements launcher.Factory.
func (f *CountingFactory) NewLauncher(ctx context.Context, def *definition.Definition, owner launcher.Owner) (launcher.Launcher, error) {
	l, err := f.Inner.NewLauncher(ctx, def, owner)
	if err != nil {
		return nil, err
	}
	f.created.Add(1)
	f.last.Store(l)
	return l, nil
}

// Created returns how many launchers the factory produced.
func (f *CountingFactory) Created() int {
	return int(f.created.Load())
}

// Last returns the most recently produced launcher, or nil.
func (f *CountingFactory) Last() launcher.Launcher {
	if l, ok := f.last.Load().(launcher.Launcher); ok {
		return l
	}
	return nil
}
