// Package inference runs exported TensorFlow Lite front ends.
//
// A Model owns one interpreter. The interpreter is not re-entrant, so Run
// serializes callers.
package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/wolfhowl/bioacoustics/internal/cpuspec"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// ErrInputSize is returned when Run gets a buffer of the wrong length
var ErrInputSize = errors.NewStd("input does not match the model input tensor")

// Model is a loaded TFLite model with an allocated interpreter
type Model struct {
	mu          sync.Mutex
	path        string
	family      string
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputShape  []int
	inputSize   int
	outputSize  int
}

// Load reads a .tflite file and allocates an interpreter with threads
// threads (0 picks a count from the host CPU). family is only used for error
// context and logging.
func Load(path, family string, threads int) (*Model, error) {
	start := time.Now()
	log := GetLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(family, path).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(family, path).
			Context("model_size_mb", len(data)/1024/1024).
			Build()
	}

	threads = cpuspec.InferenceThreads(threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(family, path).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed: %v", status)).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(family, path).
			Build()
	}

	m := &Model{
		path:        path,
		family:      family,
		model:       model,
		options:     options,
		interpreter: interpreter,
	}
	if err := m.readShapes(); err != nil {
		m.Close()
		return nil, err
	}

	log.Info("TFLite front end loaded",
		logger.String("family", family),
		logger.String("model", filepath.Base(path)),
		logger.Int("threads", threads),
		logger.Any("input_shape", m.inputShape),
		logger.Int("output_size", m.outputSize),
		logger.Duration("elapsed", time.Since(start)))
	return m, nil
}

func (m *Model) readShapes() error {
	input := m.interpreter.GetInputTensor(0)
	output := m.interpreter.GetOutputTensor(0)
	if input == nil || output == nil {
		return errors.New(fmt.Errorf("cannot get model tensors")).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(m.family, m.path).
			Build()
	}

	m.inputSize = 1
	for i := range input.NumDims() {
		d := input.Dim(i)
		m.inputShape = append(m.inputShape, d)
		if d > 0 {
			m.inputSize *= d
		}
	}
	m.outputSize = output.Dim(output.NumDims() - 1)
	return nil
}

// InputShape returns the dimensions of the first input tensor.
func (m *Model) InputShape() []int {
	return m.inputShape
}

// InputSize returns the number of float32 values Run expects.
func (m *Model) InputSize() int {
	return m.inputSize
}

// OutputSize returns the length of the last output dimension.
func (m *Model) OutputSize() int {
	return m.outputSize
}

// Path returns the file the model was loaded from.
func (m *Model) Path() string {
	return m.path
}

// Run copies input into the input tensor, invokes the interpreter and
// returns a copy of the first output tensor.
func (m *Model) Run(input []float32) ([]float32, error) {
	if len(input) != m.inputSize {
		return nil, errors.New(fmt.Errorf("%w: got %d values, want %d", ErrInputSize, len(input), m.inputSize)).
			Component("inference").
			Category(errors.CategoryValidation).
			ModelContext(m.family, m.path).
			Build()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, errors.Newf("model is closed").
			Component("inference").
			Category(errors.CategoryState).
			ModelContext(m.family, m.path).
			Build()
	}

	copy(m.interpreter.GetInputTensor(0).Float32s(), input)
	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Component("inference").
			Category(errors.CategoryInference).
			ModelContext(m.family, m.path).
			Build()
	}

	out := m.interpreter.GetOutputTensor(0).Float32s()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the interpreter. Safe to call more than once.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}

// GetLogger returns the inference logger
func GetLogger() logger.Logger {
	return logger.Global().Module("inference")
}
