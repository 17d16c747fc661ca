//go:build onnx

package main

import (
	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/provider/classifier/onnx"
)

func init() {
	extraClassifiers = append(extraClassifiers, func(reg *config.Registry) {
		reg.RegisterClassifier("onnx", func(entry config.ClassifierEntry, model config.ModelConfig) (classifier.Classifier[float32], error) {
			c, err := onnx.New(onnx.Config{
				ModelPath:   entry.Model,
				LibraryPath: optString(entry.Options, "library_path"),
				BlockSize:   model.BlockSize,
				NumClasses:  len(model.Labels),
				InputName:   optString(entry.Options, "input_name"),
				OutputName:  optString(entry.Options, "output_name"),
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		})
	})
}
