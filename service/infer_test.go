package service

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = []string{"yes", "no", "cat", "dog", "2"}

// fakePredictor scores the label whose index is the first question token id
// modulo the label count, so answers depend only on the input.
type fakePredictor struct {
	err   error
	calls int
	last  *Encoding
}

func (f *fakePredictor) Predict(_ context.Context, enc *Encoding) ([]float32, error) {
	f.calls++
	f.last = enc
	if f.err != nil {
		return nil, f.err
	}
	logits := make([]float32, len(testLabels))
	logits[int(enc.InputIDs[1])%len(testLabels)] = 10
	return logits, nil
}

func newTestService(t *testing.T, p Predictor) *Service {
	t.Helper()
	return New("test/vilt", newTestTokenizer(t, 40), testLabels, p)
}

func TestAnswer(t *testing.T) {
	fp := &fakePredictor{}
	svc := newTestService(t, fp)

	res, err := svc.Answer(context.Background(), solidImage(32, 32, color.White), "cat?")
	require.NoError(t, err)
	assert.Equal(t, "cat?", res.Question)
	assert.Contains(t, testLabels, res.Answer)
	assert.Equal(t, "dog", res.Answer)

	require.NotNil(t, fp.last)
	assert.Equal(t, 384, fp.last.Height)
	assert.Equal(t, 384, fp.last.Width)
	assert.Len(t, fp.last.PixelMask, 384*384)
	assert.Len(t, fp.last.PixelValues, 3*384*384)
	assert.Equal(t, []int64{2, 8, 9, 3}, fp.last.InputIDs)
}

func TestAnswerIsDeterministic(t *testing.T) {
	svc := newTestService(t, &fakePredictor{})
	img := solidImage(50, 20, color.Black)

	first, err := svc.Answer(context.Background(), img, "what color is the cat")
	require.NoError(t, err)
	second, err := svc.Answer(context.Background(), img, "what color is the cat")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnswerWrapsFaults(t *testing.T) {
	boom := errors.New("out of memory")
	svc := newTestService(t, &fakePredictor{err: boom})

	_, err := svc.Answer(context.Background(), solidImage(8, 8, color.White), "is it a cat")
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "out of memory", err.Error())
}

type shortPredictor struct{}

func (shortPredictor) Predict(context.Context, *Encoding) ([]float32, error) {
	return []float32{1}, nil
}

func TestAnswerRejectsLogitShapeMismatch(t *testing.T) {
	svc := newTestService(t, shortPredictor{})
	_, err := svc.Answer(context.Background(), solidImage(8, 8, color.White), "cat")
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.ErrorContains(t, err, "1 scores for 5 labels")
}

func TestProcessValidatesBeforeDecoding(t *testing.T) {
	fp := &fakePredictor{}
	svc := newTestService(t, fp)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   Request
		field Field
	}{
		{"no image", Request{Question: "What color is this?"}, FieldImage},
		{"no image no question", Request{}, FieldImage},
		{"empty question", Request{Image: &Upload{Data: pngBytes(t, solidImage(4, 4, color.White))}}, FieldQuestion},
		{"blank question, corrupt image", Request{Image: &Upload{Data: []byte("garbage")}, Question: "   "}, FieldQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Process(ctx, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Zero(t, fp.calls)
}

// pooledPredictor checks a session out of a real Pool before scoring, the
// way the ONNX backend does.
type pooledPredictor struct {
	pool *Pool
}

func (p pooledPredictor) Predict(ctx context.Context, enc *Encoding) ([]float32, error) {
	m, err := p.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.release(m)
	time.Sleep(time.Millisecond)
	logits := make([]float32, len(testLabels))
	logits[int(enc.InputIDs[1])%len(testLabels)] = 10
	return logits, nil
}

func TestProcessConcurrently(t *testing.T) {
	pool := newPool([]*Model{{}, {}}, 5*time.Second)
	svc := newTestService(t, pooledPredictor{pool: pool})
	img := pngBytes(t, solidImage(24, 16, color.White))

	questions := map[string]string{
		"what color is the cat": testLabels[4%len(testLabels)],
		"cat?":                  testLabels[8%len(testLabels)],
		"is it":                 testLabels[6%len(testLabels)],
		"the picture":           testLabels[7%len(testLabels)],
	}
	t.Run("group", func(t *testing.T) {
		for i := range 16 {
			for q, want := range questions {
				t.Run(fmt.Sprintf("%d/%s", i, q), func(t *testing.T) {
					t.Parallel()
					res, err := svc.Process(context.Background(), Request{Image: &Upload{Data: img}, Question: q})
					require.NoError(t, err)
					assert.Equal(t, q, res.Question)
					assert.Equal(t, want, res.Answer)
				})
			}
		}
	})
	assert.Len(t, pool.models, 2)
}

func TestProcessBadImage(t *testing.T) {
	fp := &fakePredictor{}
	svc := newTestService(t, fp)

	for _, data := range [][]byte{{}, []byte("GIF89a-but-not-really")} {
		_, err := svc.Process(context.Background(), Request{Image: &Upload{Data: data}, Question: "what is it"})
		var perr *ProcessingError
		require.ErrorAs(t, err, &perr)
		var derr *DecodeError
		assert.ErrorAs(t, err, &derr)
	}
	assert.Zero(t, fp.calls)
}

func TestProcess(t *testing.T) {
	svc := newTestService(t, &fakePredictor{})
	res, err := svc.Process(context.Background(), Request{
		Image:    &Upload{Filename: "cat.png", Data: pngBytes(t, solidImage(20, 30, color.White))},
		Question: "What animal is in the picture?",
	})
	require.NoError(t, err)
	assert.Equal(t, "What animal is in the picture?", res.Question)
	assert.Equal(t, testLabels[4%len(testLabels)], res.Answer)
}

func TestServiceAccessors(t *testing.T) {
	svc := newTestService(t, &fakePredictor{})
	assert.Equal(t, "test/vilt", svc.ModelID())
	labels := svc.Labels()
	labels[0] = "mutated"
	assert.Equal(t, "yes", svc.Labels()[0])
	assert.NoError(t, svc.Close())
}
