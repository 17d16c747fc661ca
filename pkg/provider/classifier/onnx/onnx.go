//go:build onnx

// Package onnx provides an in-process classifier backed by ONNX Runtime.
//
// The model must accept the conditioned sample block as a float32 tensor of
// shape [1, N] and produce a float32 score tensor of shape [1, classes]. Any
// feature front-end (MFCC, log-mel) has to be part of the exported graph.
//
// The ONNX Runtime shared library is loaded once per process by
// [InitRuntime]; [New] initializes it on demand.
//
// Usage:
//
//	c, err := onnx.New(onnx.Config{
//	    ModelPath:  "models/traffic.onnx",
//	    BlockSize:  16000,
//	    NumClasses: 4,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime loads the ONNX Runtime library. libraryPath may be empty to
// search the usual locations and the ONNXRUNTIME_LIB environment variable.
// Calling it more than once is a no-op.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeInitialized {
		return nil
	}
	if libraryPath == "" {
		libraryPath = findLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx classifier: initialize runtime: %w", err)
	}
	runtimeInitialized = true
	return nil
}

// DestroyRuntime unloads the ONNX Runtime environment.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("onnx classifier: destroy runtime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

func findLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	if ld := os.Getenv("LD_LIBRARY_PATH"); ld != "" {
		for _, dir := range filepath.SplitList(ld) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Config holds the ONNX classifier parameters.
type Config struct {
	// ModelPath is the .onnx file to load.
	ModelPath string

	// LibraryPath optionally points at libonnxruntime.
	LibraryPath string

	// BlockSize is the number of samples per block.
	BlockSize int

	// NumClasses is the length of the model's score output.
	NumClasses int

	// InputName and OutputName name the graph's tensors. Defaults: "input"
	// and "output".
	InputName  string
	OutputName string
}

func (c *Config) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("onnx classifier: model path must not be empty: %w", types.ErrInvalidConfiguration)
	}
	if c.BlockSize <= 0 || c.NumClasses <= 0 {
		return fmt.Errorf("onnx classifier: block size %d and class count %d must be positive: %w",
			c.BlockSize, c.NumClasses, types.ErrInvalidConfiguration)
	}
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	return nil
}

// Classifier runs one ONNX session with pre-allocated input and output
// tensors. It is not safe for concurrent use.
type Classifier struct {
	cfg     Config
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	scores  []float32
}

// New loads the model and allocates the tensors reused by every Classify call.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := InitRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.BlockSize)))
	if err != nil {
		return nil, fmt.Errorf("onnx classifier: create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.NumClasses)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx classifier: create output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx classifier: session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx classifier: set threads: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, opts)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx classifier: create session: %w", err)
	}

	return &Classifier{
		cfg:     cfg,
		session: session,
		input:   input,
		output:  output,
		scores:  make([]float32, cfg.NumClasses),
	}, nil
}

// Classify implements classifier.Classifier. The returned slice is reused on
// the next call.
func (c *Classifier) Classify(ctx context.Context, block []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(block) != c.cfg.BlockSize {
		return nil, fmt.Errorf("onnx classifier: block has %d samples, want %d", len(block), c.cfg.BlockSize)
	}
	copy(c.input.GetData(), block)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx classifier: run: %w", err)
	}
	copy(c.scores, c.output.GetData())
	return c.scores, nil
}

// NumClasses implements classifier.Classifier.
func (c *Classifier) NumClasses() int { return c.cfg.NumClasses }

// Close releases the session and tensors.
func (c *Classifier) Close() error {
	var err error
	if c.session != nil {
		err = c.session.Destroy()
		c.session = nil
	}
	if c.input != nil {
		c.input.Destroy()
		c.input = nil
	}
	if c.output != nil {
		c.output.Destroy()
		c.output = nil
	}
	if err != nil {
		return fmt.Errorf("onnx classifier: destroy session: %w", err)
	}
	return nil
}

// Ensure Classifier implements classifier.Classifier at compile time.
var _ classifier.Classifier[float32] = (*Classifier)(nil)
