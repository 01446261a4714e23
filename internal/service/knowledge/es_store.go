package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/cloudwego/eino-ext/components/indexer/es8"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/pgvector/pgvector-go"
)

// ESStore 基于 Elasticsearch 的知识块存储
// 写入走 eino ES8 Indexer，检索用 script_score 计算余弦相似度
type ESStore struct {
	client  *elasticsearch.Client
	indexer *es8.Indexer
	index   string
}

var _ repository.KnowledgeStore = (*ESStore)(nil)

// NewESStore 创建 ES 存储并确保索引存在
func NewESStore(ctx context.Context, client *elasticsearch.Client, index string, dimensions int) (*ESStore, error) {
	if err := ensureESIndex(ctx, client, index, dimensions); err != nil {
		return nil, err
	}
	idx, err := newChunkIndexer(ctx, client, index)
	if err != nil {
		return nil, err
	}
	return &ESStore{client: client, indexer: idx, index: index}, nil
}

func (s *ESStore) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	return s.PutBatch(ctx, []*model.KnowledgeChunk{chunk})
}

// PutBatch 批量写入；任一文档未落盘时回滚本批次已写入的文档
func (s *ESStore) PutBatch(ctx context.Context, chunks []*model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		repository.PrepareChunk(c)
		ids[i] = c.ID
	}

	docs := make([]*schema.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chunkToDocument(c)
	}
	if _, err := s.indexer.Store(ctx, docs); err != nil {
		s.rollback(ids)
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	if err := s.refresh(ctx); err != nil {
		s.rollback(ids)
		return err
	}

	n, err := s.count(ctx, map[string]any{"ids": map[string]any{"values": ids}})
	if err != nil {
		s.rollback(ids)
		return err
	}
	if n != len(ids) {
		s.rollback(ids)
		return fmt.Errorf("indexed %d of %d chunks", n, len(ids))
	}
	return nil
}

func (s *ESStore) rollback(ids []string) {
	_ = deleteByQuery(context.Background(), s.client, s.index, map[string]any{
		"ids": map[string]any{"values": ids},
	})
}

func (s *ESStore) GetByOwnerAndTopic(ctx context.Context, ownerID, topic string, limit int) ([]*model.KnowledgeChunk, error) {
	if limit <= 0 {
		return []*model.KnowledgeChunk{}, nil
	}
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					termQuery(fieldOwnerID, ownerID),
					wildcardQuery(strings.ToLower(strings.TrimSpace(topic))),
				},
			},
		},
		"sort": []any{map[string]any{fieldSeq: "asc"}},
	}
	return s.search(ctx, query)
}

// HybridSearch 实现 repository.KnowledgeStore
func (s *ESStore) HybridSearch(ctx context.Context, q *repository.HybridQuery) (*repository.HybridResult, error) {
	result := &repository.HybridResult{Chunks: []*model.KnowledgeChunk{}}
	if q.Limit <= 0 {
		return result, nil
	}

	if query := buildHybridQuery(q); query != nil {
		chunks, err := s.search(ctx, query)
		if err != nil {
			return nil, err
		}
		result.Chunks = chunks
	}
	if len(result.Chunks) > 0 || !q.FallbackUnranked {
		return result, nil
	}

	chunks, err := s.search(ctx, ownerQuery(q.OwnerID, q.Limit))
	if err != nil {
		return nil, err
	}
	result.Chunks = chunks
	result.Fallback = len(chunks) > 0
	return result, nil
}

func (s *ESStore) ListByFile(ctx context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error) {
	query := map[string]any{
		"size": 10000,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{termQuery(fieldOwnerID, ownerID), termQuery(fieldFileID, fileID)},
			},
		},
		"sort": []any{map[string]any{fieldSeq: "asc"}},
	}
	return s.search(ctx, query)
}

func (s *ESStore) DeleteByFile(ctx context.Context, ownerID, fileID string) error {
	return deleteByQuery(ctx, s.client, s.index, map[string]any{
		"bool": map[string]any{
			"filter": []any{termQuery(fieldOwnerID, ownerID), termQuery(fieldFileID, fileID)},
		},
	})
}

func (s *ESStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.String())
	}
	return nil
}

func (s *ESStore) search(ctx context.Context, query map[string]any) ([]*model.KnowledgeChunk, error) {
	hits, err := doSearch(ctx, s.client, s.index, query)
	if err != nil {
		return nil, err
	}
	out := make([]*model.KnowledgeChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.toChunk())
	}
	return out, nil
}

func (s *ESStore) refresh(ctx context.Context) error {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.index),
	)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("refresh failed: %s", res.String())
	}
	return nil
}

func (s *ESStore) count(ctx context.Context, query map[string]any) (int, error) {
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, err
	}
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
		s.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.String())
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return parsed.Count, nil
}

// buildHybridQuery 构造混合检索查询；无关键词与主题时返回 nil
func buildHybridQuery(q *repository.HybridQuery) map[string]any {
	keywords := repository.NormalizeTerms(q.Keywords)
	patterns := repository.NormalizeTerms(q.TopicPatterns)
	if len(keywords) == 0 && len(patterns) == 0 {
		return nil
	}

	var should []any
	if len(keywords) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{fieldKeywordsLC: keywords}})
	}
	for _, p := range patterns {
		should = append(should, wildcardQuery(p))
	}
	filter := map[string]any{
		"bool": map[string]any{
			"filter": []any{
				termQuery(fieldOwnerID, q.OwnerID),
				map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}},
			},
		},
	}

	if len(q.Vector) == 0 {
		return map[string]any{
			"size":  q.Limit,
			"query": filter,
			"sort":  []any{map[string]any{fieldSeq: "asc"}},
		}
	}
	return map[string]any{
		"size": q.Limit,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": filter,
				"script": map[string]any{
					// 余弦相似度 +1 使分数非负；距离 = 2 - score
					"source": "cosineSimilarity(params.query_vector, '" + fieldEmbedding + "') + 1.0",
					"params": map[string]any{"query_vector": q.Vector},
				},
			},
		},
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{fieldSeq: "asc"},
		},
	}
}

func ownerQuery(ownerID string, limit int) map[string]any {
	return map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{"filter": []any{termQuery(fieldOwnerID, ownerID)}},
		},
		"sort": []any{map[string]any{fieldSeq: "asc"}},
	}
}

func termQuery(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

// wildcardQuery 主题子串匹配，大小写不敏感
func wildcardQuery(substr string) map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			fieldTopic: map[string]any{
				"value":            "*" + escapeWildcard(substr) + "*",
				"case_insensitive": true,
			},
		},
	}
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

func normalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func (h esHit) toChunk() *model.KnowledgeChunk {
	src := h.Source
	keywords := src.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return &model.KnowledgeChunk{
		ID:         h.ID,
		OwnerID:    src.OwnerID,
		FileID:     src.FileID,
		Content:    src.Content,
		Embedding:  pgvector.NewVector(src.Embedding),
		Topic:      src.Topic,
		Keywords:   keywords,
		Difficulty: model.Difficulty(src.Difficulty),
		Summary:    src.Summary,
		Seq:        src.Seq,
		CreatedAt:  src.CreatedAt,
	}
}
