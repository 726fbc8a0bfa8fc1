package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/krau/vqaserve/config"
	ort "github.com/yalue/onnxruntime_go"
)

var supportedInputs = []string{"input_ids", "attention_mask", "token_type_ids", "pixel_values", "pixel_mask"}

// Init loads tokenizer, labels and the model pool once at process start.
// The ONNX Runtime environment must already be initialized.
func Init(ctx context.Context) (*Service, error) {
	c := config.C()
	if err := EnsureModelFiles(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to fetch model files: %w", err)
	}

	tok, err := LoadTokenizer(filepath.Join(c.ModelDir, c.VocabFileName), c.MaxTextLen)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	labels, err := ReadLabels(filepath.Join(c.ModelDir, c.LabelsFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	pool, err := NewPool(filepath.Join(c.ModelDir, c.ModelFileName), len(labels), c.Workers, c.Threads,
		time.Duration(c.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	slog.Info("Model loaded",
		slog.String("model", c.ModelID),
		slog.Int("labels", len(labels)),
		slog.Int("workers", c.Workers))
	return New(c.ModelID, tok, labels, pool, WithMaxPixels(c.MaxPixels)), nil
}

func NewPool(onnxPath string, numLabels, workers, threads int, timeout time.Duration) (*Pool, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model has no outputs")
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if !slices.Contains(supportedInputs, in.Name) {
			return nil, fmt.Errorf("unsupported model input %q", in.Name)
		}
		inputNames = append(inputNames, in.Name)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	models := make([]*Model, 0, workers)
	cleanup := func() {
		for _, m := range models {
			m.destroy()
		}
	}
	for range workers {
		outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numLabels)))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to create output tensor: %w", err)
		}
		session, err := ort.NewDynamicAdvancedSession(
			onnxPath,
			inputNames,
			[]string{outputs[0].Name},
			opts,
		)
		if err != nil {
			outputTensor.Destroy()
			cleanup()
			return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
		}
		models = append(models, &Model{
			session:    session,
			output:     outputTensor,
			inputNames: inputNames,
			outputName: outputs[0].Name,
		})
	}
	return newPool(models, timeout), nil
}
