package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
)

// ErrClassifierNotRegistered is returned by [Registry.CreateClassifier] when
// no factory has been registered under the requested name.
var ErrClassifierNotRegistered = errors.New("config: classifier not registered")

// ClassifierFactory builds a float classifier backend from its config entry
// and the shared model contract. Quantization is applied by the caller.
type ClassifierFactory func(entry ClassifierEntry, model ModelConfig) (classifier.Classifier[float32], error)

// Registry maps classifier backend names to constructors. It is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	classifiers map[string]ClassifierFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{classifiers: make(map[string]ClassifierFactory)}
}

// RegisterClassifier registers factory under name, replacing any previous
// registration.
func (r *Registry) RegisterClassifier(name string, factory ClassifierFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[name] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classifiers))
	for n := range r.classifiers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateClassifier builds the backend entry.Name selects. The backend must
// produce exactly len(model.Labels) scores.
func (r *Registry) CreateClassifier(entry ClassifierEntry, model ModelConfig) (classifier.Classifier[float32], error) {
	r.mu.RLock()
	factory, ok := r.classifiers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrClassifierNotRegistered, entry.Name, r.Names())
	}
	c, err := factory(entry, model)
	if err != nil {
		return nil, fmt.Errorf("config: create classifier %q: %w", entry.Name, err)
	}
	if n := c.NumClasses(); n != len(model.Labels) {
		return nil, fmt.Errorf("config: classifier %q produces %d classes, model has %d labels", entry.Name, n, len(model.Labels))
	}
	return c, nil
}
