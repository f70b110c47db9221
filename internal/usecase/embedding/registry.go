// Package embedding resolves embedding model identifiers to decorated embedders.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/climateseal/carbonmatch/internal/domain"
)

// Model is one registered embedding model.
type Model struct {
	Name     string
	Provider string
	Dims     int
	Query    domain.Embedder
	Document domain.Embedder
	Closer   io.Closer
}

// Registry maps the embedding_model identifiers accepted by the API to embedders.
// Unknown identifiers fall back to the default model.
type Registry struct {
	models       map[string]Model
	defaultModel string
	dims         int
	logger       *zap.Logger
}

// NewRegistry creates an empty registry. Every registered model must produce dims-long vectors.
func NewRegistry(defaultModel string, dims int, logger *zap.Logger) *Registry {
	return &Registry{
		models:       make(map[string]Model),
		defaultModel: defaultModel,
		dims:         dims,
		logger:       logger,
	}
}

// Register adds a model. Document defaults to Query when unset.
func (r *Registry) Register(m Model) error {
	if m.Name == "" || m.Query == nil {
		return fmt.Errorf("%w: embedding model needs a name and an embedder", domain.ErrConfiguration)
	}
	if m.Dims != 0 && m.Dims != r.dims {
		return &domain.DimensionError{Want: r.dims, Got: m.Dims}
	}
	if m.Document == nil {
		m.Document = m.Query
	}
	r.models[m.Name] = m
	return nil
}

// Resolve returns the model registered under name, or the default model.
func (r *Registry) Resolve(name string) (Model, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	def, ok := r.models[r.defaultModel]
	if !ok {
		return Model{}, fmt.Errorf("%w: default embedding model %q is not registered",
			domain.ErrConfiguration, r.defaultModel)
	}
	if name != "" {
		r.logger.Debug("Unknown embedding model, using default",
			zap.String("requested", name),
			zap.String("default", r.defaultModel),
		)
	}
	return def, nil
}

// Query resolves name and returns its query-side embedder with the resolved name.
func (r *Registry) Query(name string) (domain.Embedder, string, error) {
	m, err := r.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	return m.Query, m.Name, nil
}

// Document resolves name and returns its document-side embedder with the resolved name.
func (r *Registry) Document(name string) (domain.Embedder, string, error) {
	m, err := r.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	return m.Document, m.Name, nil
}

// Dimensions returns the vector size shared by all models.
func (r *Registry) Dimensions() int { return r.dims }

// Names lists registered model identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HealthCheck probes the default model.
func (r *Registry) HealthCheck(ctx context.Context) error {
	m, err := r.Resolve(r.defaultModel)
	if err != nil {
		return err
	}
	if hc, ok := m.Query.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding model %s: %w", m.Name, err)
		}
	}
	return nil
}

// Close releases local model resources.
func (r *Registry) Close() error {
	var errs []error
	for _, m := range r.models {
		if m.Closer != nil {
			if err := m.Closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", m.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
