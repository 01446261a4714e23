package repository

import (
	"context"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// knowledgeRepositoryImpl 基于 PostgreSQL + pgvector 的知识块存储
type knowledgeRepositoryImpl struct {
	db *gorm.DB
}

// NewKnowledgeRepository 创建 pgvector 知识块存储
func NewKnowledgeRepository(db *gorm.DB) KnowledgeStore {
	return &knowledgeRepositoryImpl{db: db}
}

func (r *knowledgeRepositoryImpl) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	return r.PutBatch(ctx, []*model.KnowledgeChunk{chunk})
}

// PutBatch 在一个事务内批量写入
func (r *knowledgeRepositoryImpl) PutBatch(ctx context.Context, chunks []*model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		PrepareChunk(c)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// GetByOwnerAndTopic 按主题子串查找，按插入顺序返回
func (r *knowledgeRepositoryImpl) GetByOwnerAndTopic(ctx context.Context, ownerID, topic string, limit int) ([]*model.KnowledgeChunk, error) {
	var chunks []*model.KnowledgeChunk
	if limit <= 0 {
		return chunks, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(topic))) + "%"
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND lower(topic) LIKE ?", ownerID, pattern).
		Order("seq ASC").
		Limit(limit).
		Find(&chunks).Error
	return chunks, err
}

// HybridSearch 关键词/主题过滤后按余弦距离排序
func (r *knowledgeRepositoryImpl) HybridSearch(ctx context.Context, q *HybridQuery) (*HybridResult, error) {
	result := &HybridResult{Chunks: []*model.KnowledgeChunk{}}
	if q.Limit <= 0 {
		return result, nil
	}

	keywords := NormalizeTerms(q.Keywords)
	patterns := NormalizeTerms(q.TopicPatterns)

	var preds []string
	args := []interface{}{q.OwnerID}
	if len(keywords) > 0 {
		preds = append(preds, "(jsonb_typeof(keywords) = 'array' AND EXISTS "+
			"(SELECT 1 FROM jsonb_array_elements_text(keywords) AS kw(v) WHERE lower(kw.v) IN ?))")
		args = append(args, keywords)
	}
	for _, p := range patterns {
		preds = append(preds, "lower(topic) LIKE ?")
		args = append(args, "%"+escapeLike(p)+"%")
	}

	if len(preds) > 0 {
		sql := "SELECT * FROM knowledge_chunks WHERE owner_id = ? AND (" + strings.Join(preds, " OR ") + ")"
		if len(q.Vector) > 0 {
			sql += " ORDER BY embedding <=> ?::vector ASC, seq ASC"
			args = append(args, pgvector.NewVector(q.Vector))
		} else {
			sql += " ORDER BY seq ASC"
		}
		sql += " LIMIT ?"
		args = append(args, q.Limit)

		if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&result.Chunks).Error; err != nil {
			return nil, err
		}
	}

	if len(result.Chunks) > 0 || !q.FallbackUnranked {
		return result, nil
	}

	err := r.db.WithContext(ctx).
		Where("owner_id = ?", q.OwnerID).
		Order("seq ASC").
		Limit(q.Limit).
		Find(&result.Chunks).Error
	if err != nil {
		return nil, err
	}
	result.Fallback = len(result.Chunks) > 0
	return result, nil
}

func (r *knowledgeRepositoryImpl) ListByFile(ctx context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error) {
	var chunks []*model.KnowledgeChunk
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND file_id = ?", ownerID, fileID).
		Order("seq ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *knowledgeRepositoryImpl) DeleteByFile(ctx context.Context, ownerID, fileID string) error {
	return r.db.WithContext(ctx).
		Delete(&model.KnowledgeChunk{}, "owner_id = ? AND file_id = ?", ownerID, fileID).Error
}

func (r *knowledgeRepositoryImpl) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
