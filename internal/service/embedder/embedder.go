// Package embedder 将文本转换为定长向量
package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoBackend         = errors.New("embedding backend not configured")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCountMismatch     = errors.New("embedding count mismatch")
)

// Embedder 批量向量化，输出顺序与输入一致
type Embedder struct {
	backend     embedding.Embedder
	dims        int
	batchSize   int
	concurrency int
}

// New 创建 Embedder
func New(backend embedding.Embedder, dims, batchSize, concurrency int) *Embedder {
	return &Embedder{
		backend:     backend,
		dims:        dims,
		batchSize:   max(batchSize, 1),
		concurrency: max(concurrency, 1),
	}
}

// Dimensions 向量维度
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed 向量化单个文本
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 分批并发向量化
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.backend == nil {
		return nil, ErrNoBackend
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			return e.embedRange(gctx, texts[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embedRange(ctx context.Context, texts []string, dst [][]float32) error {
	vecs, err := e.backend.EmbedStrings(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrCountMismatch, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if e.dims > 0 && len(v) != e.dims {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.dims)
		}
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		dst[i] = f
	}
	return nil
}
