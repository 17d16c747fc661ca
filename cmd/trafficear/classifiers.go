package main

import (
	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/provider/classifier/remote"
)

// extraClassifiers holds registrations contributed by files behind build
// tags (see onnx.go).
var extraClassifiers []func(*config.Registry)

// registerBuiltinClassifiers wires every compiled-in backend factory into reg.
func registerBuiltinClassifiers(reg *config.Registry) {
	reg.RegisterClassifier("remote", func(entry config.ClassifierEntry, model config.ModelConfig) (classifier.Classifier[float32], error) {
		opts := []remote.Option{
			remote.WithTimeout(entry.Timeout),
			remote.WithSampleRate(model.SampleRate),
		}
		if entry.Model != "" {
			opts = append(opts, remote.WithModel(entry.Model))
		}
		c, err := remote.New[float32](entry.BaseURL, len(model.Labels), opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	for _, register := range extraClassifiers {
		register(reg)
	}
}

// optString extracts a string value from a backend Options map. It returns
// "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
