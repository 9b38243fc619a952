// Package cmd provides common initialization functions for the command-line
// binaries.
package cmd

import (
	"log/slog"

	"github.com/sourcepipe/sourcepipe/pkg/fetchers/article"
	"github.com/sourcepipe/sourcepipe/pkg/fetchers/reddit"
	"github.com/sourcepipe/sourcepipe/pkg/httpclient"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
	"github.com/sourcepipe/sourcepipe/pkg/registry"
	"github.com/sourcepipe/sourcepipe/pkg/steps/publish"
	"github.com/sourcepipe/sourcepipe/pkg/steps/transform"
)

// RegistryDeps are the shared collaborators handed to every native factory.
type RegistryDeps struct {
	Tokens reddit.TokenSource
	Client httpclient.Client
	Ledger persistence.LedgerRepository
	Clock  protocol.Clock
}

func registerFetcherPlugins(reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadFetcherPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterFetcher(plugin)
	}
}

func registerStepPlugins(reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadStepPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterStep(plugin)
	}
}

func registerNativeFetchers(reg *registry.Registry, deps RegistryDeps) {
	reg.RegisterFetcher(reddit.NewFactory(deps.Tokens, deps.Client, deps.Ledger, deps.Clock))
	reg.RegisterFetcher(article.NewFactory(deps.Client, deps.Ledger, deps.Clock))
}

func registerNativeSteps(reg *registry.Registry, deps RegistryDeps) {
	reg.RegisterStep(transform.NewFactory())
	reg.RegisterStep(publish.NewFactory(deps.Client))
}

// NewRegistry assembles the factory registry with native fetchers and steps
// plus anything found under the plugins path.
func NewRegistry(logger *slog.Logger, pluginsPath string, deps RegistryDeps) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerFetcherPlugins(reg, pluginsPath)
	registerStepPlugins(reg, pluginsPath)

	registerNativeFetchers(reg, deps)
	registerNativeSteps(reg, deps)

	return reg
}
