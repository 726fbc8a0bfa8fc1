package service

import (
	ort "github.com/yalue/onnxruntime_go"
)

const (
	ShortestEdge = 384
	// 1333/800 of the shortest edge, truncated
	LongestEdge = 1333 * ShortestEdge / 800
	SizeDivisor = 32
)

var (
	PixelMean = [3]float32{0.5, 0.5, 0.5}
	PixelStd  = [3]float32{0.5, 0.5, 0.5}
)

type AnswerResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Encoding is one question/image pair in the layout the model consumes.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	PixelValues   []float32
	PixelMask     []int64
	Height        int
	Width         int
}

type Model struct {
	session    *ort.DynamicAdvancedSession
	output     *ort.Tensor[float32]
	inputNames []string
	outputName string
}
