package service

import (
	"context"
	"fmt"
	"image"
	"io"
)

// Predictor runs the model forward pass and returns one logit per label.
type Predictor interface {
	Predict(ctx context.Context, enc *Encoding) ([]float32, error)
}

// Service is the loaded model. Nothing in it changes after New, so one
// instance is shared by all request handlers without locking.
type Service struct {
	modelID   string
	tokenizer *Tokenizer
	labels    []string
	predictor Predictor
	maxPixels int64
}

type Option func(*Service)

// WithMaxPixels caps the declared pixel count of uploaded images.
func WithMaxPixels(n int64) Option {
	return func(s *Service) {
		s.maxPixels = n
	}
}

func New(modelID string, tok *Tokenizer, labels []string, p Predictor, opts ...Option) *Service {
	s := &Service{
		modelID:   modelID,
		tokenizer: tok,
		labels:    labels,
		predictor: p,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ModelID() string {
	return s.modelID
}

func (s *Service) Labels() []string {
	return append([]string(nil), s.labels...)
}

func (s *Service) Encode(img image.Image, question string) (*Encoding, error) {
	pixels, w, h, err := Preprocess(img)
	if err != nil {
		return nil, err
	}
	mask := make([]int64, w*h)
	for i := range mask {
		mask[i] = 1
	}
	ids, attn, types, err := s.tokenizer.Encode(question)
	if err != nil {
		return nil, err
	}
	return &Encoding{
		InputIDs:      ids,
		AttentionMask: attn,
		TokenTypeIDs:  types,
		PixelValues:   pixels,
		PixelMask:     mask,
		Height:        h,
		Width:         w,
	}, nil
}

// Answer picks the single highest scoring label for question about img.
// Every failure is returned as a *ProcessingError.
func (s *Service) Answer(ctx context.Context, img image.Image, question string) (*AnswerResult, error) {
	enc, err := s.Encode(img, question)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	logits, err := s.predictor.Predict(ctx, enc)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	if len(logits) != len(s.labels) {
		return nil, &ProcessingError{Err: fmt.Errorf("model returned %d scores for %d labels", len(logits), len(s.labels))}
	}
	idx := argmax(logits)
	if idx < 0 {
		return nil, &ProcessingError{Err: fmt.Errorf("model returned no usable scores")}
	}
	return &AnswerResult{Question: question, Answer: s.labels[idx]}, nil
}

// Process runs the whole request contract: field presence, image decode,
// inference. Presence is checked before anything is decoded.
func (s *Service) Process(ctx context.Context, req Request) (*AnswerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	img, err := DecodeImage(req.Image.Data, s.maxPixels)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	return s.Answer(ctx, img, req.Question)
}

func (s *Service) Close() error {
	if c, ok := s.predictor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
