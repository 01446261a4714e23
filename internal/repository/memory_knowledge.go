package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ashwinyue/next-tutor/internal/model"
)

// MemoryKnowledgeStore 内存知识块存储，暴力计算余弦距离
// 用于测试与本地开发
type MemoryKnowledgeStore struct {
	mu     sync.RWMutex
	chunks []*model.KnowledgeChunk // 按插入顺序
}

// NewMemoryKnowledgeStore 创建内存存储
func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{}
}

func (s *MemoryKnowledgeStore) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	return s.PutBatch(ctx, []*model.KnowledgeChunk{chunk})
}

func (s *MemoryKnowledgeStore) PutBatch(_ context.Context, chunks []*model.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		PrepareChunk(c)
		cp := *c
		s.chunks = append(s.chunks, &cp)
	}
	return nil
}

func (s *MemoryKnowledgeStore) GetByOwnerAndTopic(_ context.Context, ownerID, topic string, limit int) ([]*model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(topic))
	out := []*model.KnowledgeChunk{}
	for _, c := range s.chunks {
		if len(out) >= limit {
			break
		}
		if c.OwnerID == ownerID && strings.Contains(strings.ToLower(c.Topic), needle) {
			out = append(out, copyChunk(c))
		}
	}
	return out, nil
}

func (s *MemoryKnowledgeStore) HybridSearch(_ context.Context, q *HybridQuery) (*HybridResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &HybridResult{Chunks: []*model.KnowledgeChunk{}}
	if q.Limit <= 0 {
		return result, nil
	}
	keywords := NormalizeTerms(q.Keywords)
	patterns := NormalizeTerms(q.TopicPatterns)

	type scored struct {
		chunk *model.KnowledgeChunk
		dist  float64
	}
	var matched []scored
	for _, c := range s.chunks {
		if c.OwnerID != q.OwnerID || !MatchesHybrid(c, keywords, patterns) {
			continue
		}
		d := 0.0
		if len(q.Vector) > 0 {
			d = CosineDistance(q.Vector, c.Embedding.Slice())
		}
		matched = append(matched, scored{chunk: c, dist: d})
	}
	// 稳定排序保证距离相同时保持插入顺序
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].dist < matched[j].dist })

	for _, m := range matched {
		if len(result.Chunks) >= q.Limit {
			break
		}
		result.Chunks = append(result.Chunks, copyChunk(m.chunk))
	}
	if len(result.Chunks) > 0 || !q.FallbackUnranked {
		return result, nil
	}

	for _, c := range s.chunks {
		if len(result.Chunks) >= q.Limit {
			break
		}
		if c.OwnerID == q.OwnerID {
			result.Chunks = append(result.Chunks, copyChunk(c))
		}
	}
	result.Fallback = len(result.Chunks) > 0
	return result, nil
}

func (s *MemoryKnowledgeStore) ListByFile(_ context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.KnowledgeChunk{}
	for _, c := range s.chunks {
		if c.OwnerID == ownerID && c.FileID == fileID {
			out = append(out, copyChunk(c))
		}
	}
	return out, nil
}

func (s *MemoryKnowledgeStore) DeleteByFile(_ context.Context, ownerID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.OwnerID == ownerID && c.FileID == fileID {
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return nil
}

func (s *MemoryKnowledgeStore) Ping(context.Context) error {
	return nil
}

// Len 当前知识块数量
func (s *MemoryKnowledgeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func copyChunk(c *model.KnowledgeChunk) *model.KnowledgeChunk {
	cp := *c
	cp.Keywords = append([]string{}, c.Keywords...)
	return &cp
}
