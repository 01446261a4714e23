package model

import (
	"time"

	"gorm.io/datatypes"
)

// FrozenChunk 会话开始时冻结的知识块快照
type FrozenChunk struct {
	ID         string     `json:"id"`
	FileID     string     `json:"file_id"`
	Content    string     `json:"content"`
	Topic      string     `json:"topic"`
	Keywords   []string   `json:"keywords"`
	Difficulty Difficulty `json:"difficulty"`
	Summary    string     `json:"summary"`
}

// TeachingSession 苏格拉底式问答会话
type TeachingSession struct {
	ID               string                           `json:"id" gorm:"primaryKey;size:36"`
	OwnerID          string                           `json:"owner_id" gorm:"index;size:36;not null"`
	Topic            string                           `json:"topic" gorm:"size:255"`
	TurnIndex        int                              `json:"turn_index" gorm:"not null;default:0"`
	MaxQuestions     int                              `json:"max_questions" gorm:"not null"`
	Completed        bool                             `json:"completed" gorm:"not null;default:false;index"`
	Context          datatypes.JSONSlice[FrozenChunk] `json:"context"`
	ExpandedKeywords datatypes.JSONSlice[string]      `json:"expanded_keywords"`
	PendingQuestion  string                           `json:"pending_question,omitempty" gorm:"type:text"`
	Evaluation       datatypes.JSON                   `json:"-"`
	CreatedAt        time.Time                        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                        `json:"updated_at" gorm:"autoUpdateTime"`
	Answers          []Answer                         `json:"answers,omitempty" gorm:"foreignKey:SessionID"`
}

// Answer 学习者的一次回答
type Answer struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID string    `json:"session_id" gorm:"size:36;not null;uniqueIndex:idx_answers_session_seq"`
	Seq       int       `json:"seq" gorm:"not null;uniqueIndex:idx_answers_session_seq"` // 回答时的轮次
	Question  string    `json:"question" gorm:"type:text"`
	Text      string    `json:"text" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (TeachingSession) TableName() string {
	return "teaching_sessions"
}

func (Answer) TableName() string {
	return "answers"
}

// EvaluationResult 会话评估结果
type EvaluationResult struct {
	Grade           string   `json:"grade"`
	CorrectConcepts []string `json:"correct_concepts"`
	Misconceptions  []string `json:"misconceptions"`
	ImprovementTips []string `json:"improvement_tips"`
	Degraded        bool     `json:"degraded,omitempty"`
}
