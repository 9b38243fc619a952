// Package registry holds the fetcher and step factories available to flows
// and validates flow configuration against each factory's schema.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

type Registry struct {
	logger           *slog.Logger
	fetcherFactories map[string]protocol.FetcherFactory
	stepFactories    map[string]protocol.StepFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		fetcherFactories: make(map[string]protocol.FetcherFactory),
		stepFactories:    make(map[string]protocol.StepFactory),
	}
}

func (r *Registry) RegisterFetcher(factory protocol.FetcherFactory) {
	r.fetcherFactories[factory.ID()] = factory
}

func (r *Registry) RegisterStep(factory protocol.StepFactory) {
	r.stepFactories[factory.ID()] = factory
}

// FetcherFactory returns the factory registered under the given ID.
func (r *Registry) FetcherFactory(fetcherID string) (protocol.FetcherFactory, error) {
	factory, ok := r.fetcherFactories[fetcherID]
	if !ok {
		return nil, fmt.Errorf("fetcher '%s' not registered", fetcherID)
	}

	return factory, nil
}

// CreateFetcher validates the configuration against the factory schema and
// creates a fetch handler.
func (r *Registry) CreateFetcher(fetcherID string, config map[string]any) (protocol.FetchHandler, error) {
	factory, err := r.FetcherFactory(fetcherID)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config, factory.Schema()); err != nil {
		return nil, models.NewConfigError(fetcherID, err.Error())
	}

	return factory.Create(config, r.logger)
}

// CreateStep validates the configuration against the factory schema and
// creates a pipeline step.
func (r *Registry) CreateStep(stepType string, config map[string]any) (protocol.Step, error) {
	factory, ok := r.stepFactories[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	if err := validateConfig(config, factory.Schema()); err != nil {
		return nil, models.NewConfigError(stepType, err.Error())
	}

	return factory.Create(config)
}

// AvailableFetchers returns the registered fetcher IDs.
func (r *Registry) AvailableFetchers() []string {
	ids := make([]string, 0, len(r.fetcherFactories))
	for id := range r.fetcherFactories {
		ids = append(ids, id)
	}

	return ids
}

// AvailableSteps returns the registered step types.
func (r *Registry) AvailableSteps() []string {
	ids := make([]string, 0, len(r.stepFactories))
	for id := range r.stepFactories {
		ids = append(ids, id)
	}

	return ids
}

func validateConfig(config map[string]any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
