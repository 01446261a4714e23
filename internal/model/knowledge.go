package model

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Difficulty 难度等级
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ParseDifficulty 解析难度，大小写不敏感
func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return d, true
	default:
		return "", false
	}
}

// KnowledgeChunk 知识块：入库后不可修改，仅随所属文件一起删除
type KnowledgeChunk struct {
	ID         string                      `json:"id" gorm:"primaryKey;size:36"`
	OwnerID    string                      `json:"owner_id" gorm:"index;size:36;not null"`
	FileID     string                      `json:"file_id" gorm:"index;size:36;not null"`
	Content    string                      `json:"content" gorm:"type:text"`
	Embedding  pgvector.Vector             `json:"-" gorm:"type:vector"`
	Topic      string                      `json:"topic" gorm:"size:255;index"`
	Keywords   datatypes.JSONSlice[string] `json:"keywords"`
	Difficulty Difficulty                  `json:"difficulty" gorm:"size:20"`
	Summary    string                      `json:"summary" gorm:"type:text"`
	Seq        int64                       `json:"seq" gorm:"index"` // 插入顺序，用于排序平局
	CreatedAt  time.Time                   `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}

// ChunkMetadata 知识块元数据
type ChunkMetadata struct {
	Topic      string     `json:"topic"`
	Keywords   []string   `json:"keywords"`
	Difficulty Difficulty `json:"difficulty"`
	Summary    string     `json:"summary"`
}

// Freeze 生成会话快照
func (c *KnowledgeChunk) Freeze() FrozenChunk {
	return FrozenChunk{
		ID:         c.ID,
		FileID:     c.FileID,
		Content:    c.Content,
		Topic:      c.Topic,
		Keywords:   append([]string(nil), c.Keywords...),
		Difficulty: c.Difficulty,
		Summary:    c.Summary,
	}
}

var lastSeq atomic.Int64

// NextSeq 返回进程内单调递增的插入序号
func NextSeq() int64 {
	for {
		last := lastSeq.Load()
		next := max(time.Now().UnixNano(), last+1)
		if lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}
