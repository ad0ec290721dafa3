package birdnet

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// TFLiteModel runs a TensorFlow Lite model whose input is a batch of
// sample windows and whose first output is one vector per window. It
// serves as Classifier for the analysis model and as Embedder for the
// embedding model.
type TFLiteModel struct {
	mu          sync.Mutex
	path        string
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputSize   int // samples per window
	batchSize   int // batch dimension currently allocated
}

// LoadTFLite loads the model at path using threads interpreter threads.
func LoadTFLite(path string, threads int) (*TFLiteModel, error) {
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		return nil, modelError(path, fmt.Errorf("cannot access model file: %w", err))
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, modelError(path, fmt.Errorf("cannot load TensorFlow Lite model"))
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(max(1, min(threads, runtime.NumCPU())))
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, modelError(path, fmt.Errorf("cannot create interpreter"))
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelError(path, fmt.Errorf("tensor allocation failed: %v", status))
	}

	input := interpreter.GetInputTensor(0)
	if input == nil {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, modelError(path, fmt.Errorf("cannot get input tensor"))
	}

	m := &TFLiteModel{
		path:        path,
		model:       model,
		options:     options,
		interpreter: interpreter,
		inputSize:   input.Dim(input.NumDims() - 1),
		batchSize:   input.Dim(0),
	}

	GetLogger().Info("model initialized",
		logger.String("model", path),
		logger.Int("threads", threads),
		logger.Int("input_size", m.inputSize),
		logger.Int("output_size", m.OutputSize()),
		logger.Duration("elapsed", time.Since(start)))
	return m, nil
}

func modelError(path string, err error) error {
	return errors.New(err).
		Component("birdnet").
		Category(errors.CategoryModelLoad).
		Context("model_path", path).
		Build()
}

// InputSize returns the number of samples the model expects per window.
func (m *TFLiteModel) InputSize() int { return m.inputSize }

// OutputSize returns the length of each output vector.
func (m *TFLiteModel) OutputSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.interpreter.GetOutputTensor(0)
	if out == nil {
		return 0
	}
	return out.Dim(out.NumDims() - 1)
}

// ValidateLabels checks that the label count matches the model's classes.
func (m *TFLiteModel) ValidateLabels(labels []string) error {
	if size := m.OutputSize(); size != len(labels) {
		return errors.Newf("label count mismatch: model expects %d classes but label file has %d labels",
			size, len(labels)).
			Component("birdnet").
			Category(errors.CategoryValidation).
			Context("model_path", m.path).
			Context("expected_labels", size).
			Context("actual_labels", len(labels)).
			Build()
	}
	return nil
}

// Predict implements Classifier.
func (m *TFLiteModel) Predict(ctx context.Context, samples [][]float32) ([][]float32, error) {
	return m.run(ctx, samples)
}

// Embed implements Embedder.
func (m *TFLiteModel) Embed(ctx context.Context, samples [][]float32) ([][]float32, error) {
	return m.run(ctx, samples)
}

func (m *TFLiteModel) run(ctx context.Context, samples [][]float32) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	// the interpreter is not safe for concurrent use
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.resize(len(samples)); err != nil {
		return nil, err
	}

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	data := input.Float32s()
	for i, s := range samples {
		if len(s) != m.inputSize {
			return nil, fmt.Errorf("window %d has %d samples, model expects %d", i, len(s), m.inputSize)
		}
		copy(data[i*m.inputSize:], s)
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	width := output.Dim(output.NumDims() - 1)
	flat := output.Float32s()
	if len(flat) < width*len(samples) {
		return nil, fmt.Errorf("output tensor holds %d values, want %d", len(flat), width*len(samples))
	}

	rows := make([][]float32, len(samples))
	for i := range rows {
		rows[i] = make([]float32, width)
		copy(rows[i], flat[i*width:(i+1)*width])
	}
	return rows, nil
}

// resize reallocates the input tensor when the batch dimension changes.
func (m *TFLiteModel) resize(batch int) error {
	if batch == m.batchSize {
		return nil
	}
	//nolint:gosec // G115: batch and input sizes are small positive ints
	dims := []int32{int32(batch), int32(m.inputSize)}
	if status := m.interpreter.ResizeInputTensor(0, dims); status != tflite.OK {
		return fmt.Errorf("input tensor resize to %v failed: %v", dims, status)
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("tensor allocation failed: %v", status)
	}
	m.batchSize = batch
	return nil
}

// Close releases the interpreter and model.
func (m *TFLiteModel) Close() {
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
