// Package retrieval 基于查询扩展的混合检索
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrNoMaterial 学习者还没有任何知识块
	ErrNoMaterial = errors.New("no study material uploaded")
)

var expansionShape = llm.Shape{
	Name: "KeywordExpansion",
	Schema: `{
  "type": "object",
  "properties": {
    "keywords": {"type": "array", "items": {"type": "string"}, "description": "related concepts, synonyms, prerequisites and applications"}
  },
  "required": ["keywords"]
}`,
}

type keywordExpansion struct {
	Keywords []string `json:"keywords"`
}

func (k *keywordExpansion) Validate() error {
	for _, kw := range k.Keywords {
		if strings.TrimSpace(kw) != "" {
			return nil
		}
	}
	return errors.New("keywords are empty")
}

// VectorEmbedder 查询向量化
type VectorEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result 检索结果
type Result struct {
	Chunks           []*model.KnowledgeChunk `json:"chunks"`
	ExpandedKeywords []string                `json:"expanded_keywords"`
	Fallback         bool                    `json:"fallback"`
}

// Retriever 检索器
type Retriever struct {
	gen              llm.Generator
	embedder         VectorEmbedder
	store            repository.KnowledgeStore
	cache            ExpansionCache
	maxKeywords      int
	maxTopK          int
	fallbackUnranked bool
	log              *logger.Logger
}

// Option 配置项
type Option func(*Retriever)

// WithCache 设置扩展结果缓存
func WithCache(c ExpansionCache) Option {
	return func(r *Retriever) { r.cache = c }
}

// WithMaxKeywords 扩展关键词上限（包含原查询）
func WithMaxKeywords(n int) Option {
	return func(r *Retriever) { r.maxKeywords = n }
}

// WithMaxTopK 单次检索返回数量上限，<= 0 表示不限制
func WithMaxTopK(n int) Option {
	return func(r *Retriever) { r.maxTopK = n }
}

// WithFallbackUnranked 谓词无命中时是否按插入顺序回退
func WithFallbackUnranked(enabled bool) Option {
	return func(r *Retriever) { r.fallbackUnranked = enabled }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Retriever) { r.log = l }
}

// New 创建检索器
func New(gen llm.Generator, embedder VectorEmbedder, store repository.KnowledgeStore, opts ...Option) *Retriever {
	r := &Retriever{
		gen:              gen,
		embedder:         embedder,
		store:            store,
		maxKeywords:      12,
		maxTopK:          50,
		fallbackUnranked: true,
		log:              logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve 扩展查询后执行混合检索
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, topK int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK = r.clampTopK(topK)

	expanded := r.ExpandQuery(ctx, query)

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	res, err := r.store.HybridSearch(ctx, &repository.HybridQuery{
		OwnerID:          ownerID,
		Keywords:         expanded,
		TopicPatterns:    expanded,
		Vector:           vec,
		Limit:            topK,
		FallbackUnranked: r.fallbackUnranked,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	if res.Fallback {
		r.log.Info("hybrid search fell back to unranked chunks", "owner_id", ownerID, "query", query)
	}
	return &Result{Chunks: res.Chunks, ExpandedKeywords: expanded, Fallback: res.Fallback}, nil
}

// RetrieveByTopic 仅按主题子串匹配
func (r *Retriever) RetrieveByTopic(ctx context.Context, ownerID, topic string, topK int) ([]*model.KnowledgeChunk, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	return r.store.GetByOwnerAndTopic(ctx, ownerID, topic, r.clampTopK(topK))
}

func (r *Retriever) clampTopK(k int) int {
	if r.maxTopK > 0 && k > r.maxTopK {
		return r.maxTopK
	}
	return k
}

// ExpandQuery 扩展查询关键词，结果总是包含原查询
// 生成失败时退化为仅包含原查询
func (r *Retriever) ExpandQuery(ctx context.Context, query string) []string {
	if r.cache != nil {
		if kws, ok := r.cache.Get(ctx, query); ok {
			return kws
		}
	}

	var out keywordExpansion
	if err := r.gen.Generate(ctx, buildExpansionPrompt(query), expansionShape, &out); err != nil {
		r.log.Warn("query expansion degraded", "query", query, "error", err)
		return []string{query}
	}

	kws := mergeKeywords(query, out.Keywords, r.maxKeywords)
	if r.cache != nil {
		r.cache.Set(ctx, query, kws)
	}
	return kws
}

// mergeKeywords 原查询放在首位，大小写不敏感去重，截断到 limit
func mergeKeywords(query string, expanded []string, limit int) []string {
	limit = max(limit, 1)
	seen := make(map[string]struct{}, len(expanded)+1)
	out := make([]string, 0, min(len(expanded)+1, limit))
	for _, kw := range append([]string{query}, expanded...) {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if len(out) >= limit {
			break
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func buildExpansionPrompt(query string) string {
	return fmt.Sprintf(`User wants to learn: %q
Expand this into a comprehensive list of related concepts, synonyms, and prerequisite topics.
Include:
- The main concept
- Related concepts
- Synonyms and alternative terms
- Prerequisite topics needed to understand this
- Common applications or examples
Return only the keywords as a list.`, query)
}
