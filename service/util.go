package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strconv"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// DefaultMaxPixels matches PIL's decompression bomb limit.
const DefaultMaxPixels = 178956970

var errEmptyImage = errors.New("image payload is empty")

// DecodeImage reads the header first and refuses images declaring more than
// maxPixels pixels, so the pixel buffer is never allocated for them.
func DecodeImage(data []byte, maxPixels int64) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errEmptyImage}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("cannot identify image file: %w", err)}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("image size (%d pixels) exceeds limit of %d pixels", pixels, maxPixels)}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("cannot identify image file: %w", err)}
	}
	return img, nil
}

// ReadLabels loads the id2label table of a model config.json.
func ReadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("%s has no id2label table", path)
	}

	labels := make([]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(labels) {
			return nil, fmt.Errorf("invalid label id %q in %s", k, path)
		}
		labels[i] = v
	}
	return labels, nil
}

// argmax returns the index of the highest score. Exact ties go to the lowest
// index; NaN never wins. It returns -1 when no score is comparable.
func argmax(scores []float32) int {
	idx := -1
	best := float32(math.Inf(-1))
	for i, v := range scores {
		if v > best || (idx < 0 && v == best) {
			best = v
			idx = i
		}
	}
	return idx
}

func resizeDims(w, h int) (int, int) {
	scale := float64(ShortestEdge) / float64(min(w, h))
	var nw, nh float64
	if h < w {
		nh = ShortestEdge
		nw = scale * float64(w)
	} else {
		nh = scale * float64(h)
		nw = ShortestEdge
	}
	if m := math.Max(nw, nh); m > LongestEdge {
		s := LongestEdge / m
		nw *= s
		nh *= s
	}
	iw, ih := int(nw+0.5), int(nh+0.5)
	return iw / SizeDivisor * SizeDivisor, ih / SizeDivisor * SizeDivisor
}

// prepare image for model input: CHW, rescaled and normalized
func Preprocess(img image.Image) ([]float32, int, int, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, 0, 0, fmt.Errorf("image has no pixels")
	}
	w, h := resizeDims(b.Dx(), b.Dy())
	if w == 0 || h == 0 {
		return nil, 0, 0, fmt.Errorf("image aspect ratio %dx%d is too extreme", b.Dx(), b.Dy())
	}

	rgb := imaging.Resize(img, w, h, imaging.CatmullRom)

	plane := w * h
	out := make([]float32, 3*plane)
	for y := range h {
		row := rgb.Pix[y*rgb.Stride:]
		for x := range w {
			px := row[x*4:]
			i := y*w + x
			for c := range 3 {
				v := float32(px[c]) / 255.0
				out[c*plane+i] = (v - PixelMean[c]) / PixelStd[c]
			}
		}
	}
	return out, w, h, nil
}
