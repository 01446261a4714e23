package repository

import (
	"context"
	"errors"

	"github.com/ashwinyue/next-tutor/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// sessionRepositoryImpl 教学会话仓库
type sessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

// Create 创建会话
func (r *sessionRepositoryImpl) Create(ctx context.Context, s *model.TeachingSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetByID 获取会话（不含回答）
func (r *sessionRepositoryImpl) GetByID(ctx context.Context, ownerID, id string) (*model.TeachingSession, error) {
	var s model.TeachingSession
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByOwner 列出会话
func (r *sessionRepositoryImpl) ListByOwner(ctx context.Context, ownerID string) ([]*model.TeachingSession, error) {
	var sessions []*model.TeachingSession
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// ListAnswers 按轮次顺序获取回答
func (r *sessionRepositoryImpl) ListAnswers(ctx context.Context, sessionID string) ([]*model.Answer, error) {
	var answers []*model.Answer
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("seq ASC").Find(&answers).Error
	return answers, err
}

// RecordAnswer 在一个事务内推进轮次并写入回答
func (r *sessionRepositoryImpl) RecordAnswer(ctx context.Context, u *TurnUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TeachingSession{}).
			Where("id = ? AND turn_index = ? AND completed = ?", u.SessionID, u.ExpectedTurn, false).
			Updates(map[string]interface{}{
				"turn_index":       u.ExpectedTurn + 1,
				"completed":        u.Completed,
				"pending_question": u.NextQuestion,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTurn
		}
		u.Answer.SessionID = u.SessionID
		u.Answer.Seq = u.ExpectedTurn
		return tx.Create(u.Answer).Error
	})
}

// SaveEvaluation 缓存评估结果
func (r *sessionRepositoryImpl) SaveEvaluation(ctx context.Context, id string, evaluation []byte) error {
	return r.db.WithContext(ctx).Model(&model.TeachingSession{}).
		Where("id = ?", id).
		Update("evaluation", datatypes.JSON(evaluation)).Error
}

// Delete 删除会话（级联删除回答）
func (r *sessionRepositoryImpl) Delete(ctx context.Context, ownerID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.TeachingSession{}).Where("id = ? AND owner_id = ?", id, ownerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrSessionNotFound
		}
		if err := tx.Delete(&model.Answer{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.TeachingSession{}, "id = ?", id).Error
	})
}
