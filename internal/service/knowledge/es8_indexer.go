package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/cloudwego/eino-ext/components/indexer/es8"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
)

// 文档元数据键
const (
	fieldOwnerID    = "owner_id"
	fieldFileID     = "file_id"
	fieldTopic      = "topic"
	fieldKeywords   = "keywords"
	fieldKeywordsLC = "keywords_lc"
	fieldDifficulty = "difficulty"
	fieldSummary    = "summary"
	fieldSeq        = "seq"
	fieldCreatedAt  = "created_at"
	fieldEmbedding  = "embedding"
)

// esChunk 索引中的知识块文档
type esChunk struct {
	OwnerID    string    `json:"owner_id"`
	FileID     string    `json:"file_id"`
	Content    string    `json:"content"`
	Topic      string    `json:"topic"`
	Keywords   []string  `json:"keywords"`
	Difficulty string    `json:"difficulty"`
	Summary    string    `json:"summary"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
	Embedding  []float32 `json:"embedding"`
}

// newChunkIndexer 创建 eino ES8 Indexer
// 向量在入库前已经计算好，作为普通字段写入，因此不配置 Embedding
func newChunkIndexer(ctx context.Context, client *elasticsearch.Client, index string) (*es8.Indexer, error) {
	idx, err := es8.NewIndexer(ctx, &es8.IndexerConfig{
		Client:    client,
		Index:     index,
		BatchSize: 50,
		DocumentToFields: func(_ context.Context, doc *schema.Document) (map[string]es8.FieldValue, error) {
			return documentToESFields(doc), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES8 indexer: %w", err)
	}
	return idx, nil
}

// documentToESFields 将 eino Document 转换为 ES 字段
func documentToESFields(doc *schema.Document) map[string]es8.FieldValue {
	fields := map[string]es8.FieldValue{
		"content": {Value: doc.Content},
	}
	for k, v := range doc.MetaData {
		fields[k] = es8.FieldValue{Value: v}
	}
	return fields
}

// chunkToDocument 知识块 -> eino Document
func chunkToDocument(c *model.KnowledgeChunk) *schema.Document {
	lc := make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		lc = append(lc, normalizeKeyword(k))
	}
	return &schema.Document{
		ID:      c.ID,
		Content: c.Content,
		MetaData: map[string]any{
			fieldOwnerID:    c.OwnerID,
			fieldFileID:     c.FileID,
			fieldTopic:      c.Topic,
			fieldKeywords:   []string(c.Keywords),
			fieldKeywordsLC: lc,
			fieldDifficulty: string(c.Difficulty),
			fieldSummary:    c.Summary,
			fieldSeq:        c.Seq,
			fieldCreatedAt:  c.CreatedAt,
			fieldEmbedding:  c.Embedding.Slice(),
		},
	}
}
