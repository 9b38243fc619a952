package registry

import (
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

// LoadFetcherPlugins loads fetcher factories from .so files under
// <pluginsPath>/fetchers.
func (r *Registry) LoadFetcherPlugins(pluginsPath string) ([]protocol.FetcherFactory, error) {
	return loadPlugin[protocol.FetcherFactory](r.logger, pluginsPath, "Fetcher")
}

// LoadStepPlugins loads step factories from .so files under
// <pluginsPath>/steps.
func (r *Registry) LoadStepPlugins(pluginsPath string) ([]protocol.StepFactory, error) {
	return loadPlugin[protocol.StepFactory](r.logger, pluginsPath, "Step")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, err
		}

		symbol, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, err
		}

		factory, ok := symbol.(T)
		if !ok {
			l.Warn("Plugin symbol has the wrong type", slog.String("plugin", p))

			continue
		}

		pluginList = append(pluginList, factory)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
