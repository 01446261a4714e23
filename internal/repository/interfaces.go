// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"errors"

	"github.com/ashwinyue/next-tutor/internal/model"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid file status transition")
	// ErrStaleTurn 会话轮次已被其他请求推进
	ErrStaleTurn = errors.New("session turn is stale")
)

// ========== FileRepository 接口 ==========

// FileRepository 上传文件数据访问接口
type FileRepository interface {
	Create(ctx context.Context, f *model.UploadedFile) error
	GetByID(ctx context.Context, ownerID, id string) (*model.UploadedFile, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.UploadedFile, error)
	// MarkProcessing pending -> processing
	MarkProcessing(ctx context.Context, id string) error
	// MarkCompleted processing -> completed
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	// MarkFailed 非终态 -> failed
	MarkFailed(ctx context.Context, id string, message string) error
	Delete(ctx context.Context, ownerID, id string) error
}

// ========== SessionRepository 接口 ==========

// TurnUpdate 一次回答提交对会话的修改
type TurnUpdate struct {
	SessionID    string
	ExpectedTurn int
	Answer       *model.Answer
	Completed    bool
	NextQuestion string
}

// SessionRepository 教学会话数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, s *model.TeachingSession) error
	GetByID(ctx context.Context, ownerID, id string) (*model.TeachingSession, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.TeachingSession, error)
	ListAnswers(ctx context.Context, sessionID string) ([]*model.Answer, error)
	// RecordAnswer 原子地追加回答并推进轮次；轮次不匹配时返回 ErrStaleTurn
	RecordAnswer(ctx context.Context, u *TurnUpdate) error
	SaveEvaluation(ctx context.Context, id string, evaluation []byte) error
	// Delete 删除会话及其回答
	Delete(ctx context.Context, ownerID, id string) error
}

// ========== KnowledgeStore 接口 ==========

// HybridQuery 混合检索参数
type HybridQuery struct {
	OwnerID          string
	Keywords         []string
	TopicPatterns    []string
	Vector           []float32
	Limit            int
	FallbackUnranked bool
}

// HybridResult 混合检索结果；Fallback 表示谓词无命中后按插入顺序返回
type HybridResult struct {
	Chunks   []*model.KnowledgeChunk
	Fallback bool
}

// KnowledgeStore 知识块存储
// 所有读操作都按 owner 过滤；写入只追加
type KnowledgeStore interface {
	Put(ctx context.Context, chunk *model.KnowledgeChunk) error
	// PutBatch 要么全部写入，要么全部不写
	PutBatch(ctx context.Context, chunks []*model.KnowledgeChunk) error
	GetByOwnerAndTopic(ctx context.Context, ownerID, topic string, limit int) ([]*model.KnowledgeChunk, error)
	HybridSearch(ctx context.Context, q *HybridQuery) (*HybridResult, error)
	ListByFile(ctx context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error)
	DeleteByFile(ctx context.Context, ownerID, fileID string) error
	Ping(ctx context.Context) error
}

// 确保实现了接口
var (
	_ FileRepository    = (*fileRepositoryImpl)(nil)
	_ SessionRepository = (*sessionRepositoryImpl)(nil)
	_ KnowledgeStore    = (*knowledgeRepositoryImpl)(nil)
	_ KnowledgeStore    = (*MemoryKnowledgeStore)(nil)
)
