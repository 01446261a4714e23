package chunker

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// 元数据键
const (
	MetaChunkIndex = "chunk_index"
	MetaStart      = "start"
)

var _ document.Transformer = (*Splitter)(nil)

// Transform 实现 eino document.Transformer
func (s *Splitter) Transform(_ context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, doc := range src {
		for i, sp := range s.SplitSpans(doc.Content) {
			meta := maps.Clone(doc.MetaData)
			if meta == nil {
				meta = make(map[string]any, 2)
			}
			meta[MetaChunkIndex] = i
			meta[MetaStart] = sp.Start
			out = append(out, &schema.Document{
				ID:       fmt.Sprintf("%s_%d", doc.ID, i),
				Content:  sp.Text,
				MetaData: meta,
			})
		}
	}
	return out, nil
}

// NewTransformer 按配置创建切分器
// builtin 为本包实现；eino 使用 eino-ext recursive splitter
func NewTransformer(ctx context.Context, cfg *config.ChunkingConfig) (document.Transformer, error) {
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}

	switch cfg.Engine {
	case "builtin", "":
		return New(cfg.ChunkSize, cfg.ChunkOverlap, WithSeparators(seps), WithHardCut(cfg.HardCut))
	case "eino":
		einoSeps := append([]string(nil), seps...)
		if cfg.HardCut {
			einoSeps = append(einoSeps, "")
		}
		splitter, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   cfg.ChunkSize,
			OverlapSize: cfg.ChunkOverlap,
			Separators:  einoSeps,
			KeepType:    recursive.KeepTypeEnd,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create recursive splitter: %w", err)
		}
		return &nonEmpty{next: splitter}, nil
	default:
		return nil, fmt.Errorf("unsupported chunking engine: %s", cfg.Engine)
	}
}

// nonEmpty 丢弃空白片段
type nonEmpty struct {
	next document.Transformer
}

func (t *nonEmpty) Transform(ctx context.Context, src []*schema.Document, opts ...document.TransformerOption) ([]*schema.Document, error) {
	docs, err := t.next.Transform(ctx, src, opts...)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out, nil
}
