package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

var errPoolClosed = errors.New("model not initialized")

// Pool hands out a fixed set of ONNX sessions, one request per session.
type Pool struct {
	models  chan *Model
	all     []*Model
	timeout time.Duration
}

func newPool(models []*Model, timeout time.Duration) *Pool {
	p := &Pool{
		models:  make(chan *Model, len(models)),
		all:     models,
		timeout: timeout,
	}
	for _, m := range models {
		p.models <- m
	}
	return p
}

func (p *Pool) acquire(ctx context.Context) (*Model, error) {
	if p == nil || len(p.all) == 0 {
		return nil, errPoolClosed
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	select {
	case m := <-p.models:
		return m, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no model session available: %w", ctx.Err())
	}
}

func (p *Pool) release(m *Model) {
	p.models <- m
}

// Predict runs one forward pass and returns a copy of the logits.
// Once a session is acquired the run is not cancellable.
func (p *Pool) Predict(ctx context.Context, enc *Encoding) ([]float32, error) {
	m, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(m)

	inputs, err := m.inputs(enc)
	if err != nil {
		return nil, err
	}
	defer destroyValues(inputs)

	if err := m.session.Run(inputs, []ort.Value{m.output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logitsTensor := m.output.GetData()
	logits := make([]float32, len(logitsTensor))
	copy(logits, logitsTensor)
	return logits, nil
}

func (p *Pool) Close() error {
	var errs []error
	for _, m := range p.all {
		errs = append(errs, m.destroy())
	}
	p.all = nil
	return errors.Join(errs...)
}

func (m *Model) inputs(enc *Encoding) ([]ort.Value, error) {
	textShape := ort.NewShape(1, int64(len(enc.InputIDs)))
	values := make([]ort.Value, 0, len(m.inputNames))
	for _, name := range m.inputNames {
		var v ort.Value
		var err error
		switch name {
		case "input_ids":
			v, err = ort.NewTensor(textShape, enc.InputIDs)
		case "attention_mask":
			v, err = ort.NewTensor(textShape, enc.AttentionMask)
		case "token_type_ids":
			v, err = ort.NewTensor(textShape, enc.TokenTypeIDs)
		case "pixel_values":
			v, err = ort.NewTensor(ort.NewShape(1, 3, int64(enc.Height), int64(enc.Width)), enc.PixelValues)
		case "pixel_mask":
			v, err = ort.NewTensor(ort.NewShape(1, int64(enc.Height), int64(enc.Width)), enc.PixelMask)
		default:
			err = fmt.Errorf("unsupported model input %q", name)
		}
		if err != nil {
			destroyValues(values)
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func (m *Model) destroy() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
	}
	return errors.Join(errs...)
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		v.Destroy()
	}
}
