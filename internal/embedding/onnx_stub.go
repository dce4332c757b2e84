//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errNoONNX = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_, _ string, _, _, _ int, _ *zap.Logger) (*ONNXEmbedder, error) {
	return nil, errNoONNX
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoONNX }

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoONNX
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) ModelID() string { return "" }

func (e *ONNXEmbedder) Close() error { return nil }
