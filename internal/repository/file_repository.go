package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ashwinyue/next-tutor/internal/model"
	"gorm.io/gorm"
)

// fileRepositoryImpl 上传文件仓库
type fileRepositoryImpl struct {
	db *gorm.DB
}

// NewFileRepository 创建文件仓库
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepositoryImpl{db: db}
}

// Create 创建文件记录，初始状态为 pending
func (r *fileRepositoryImpl) Create(ctx context.Context, f *model.UploadedFile) error {
	f.Status = model.FileStatusPending
	return r.db.WithContext(ctx).Create(f).Error
}

// GetByID 获取文件
func (r *fileRepositoryImpl) GetByID(ctx context.Context, ownerID, id string) (*model.UploadedFile, error) {
	var f model.UploadedFile
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListByOwner 列出文件，最新的在前
func (r *fileRepositoryImpl) ListByOwner(ctx context.Context, ownerID string) ([]*model.UploadedFile, error) {
	var files []*model.UploadedFile
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&files).Error
	return files, err
}

func (r *fileRepositoryImpl) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, []model.FileStatus{model.FileStatusPending}, map[string]interface{}{
		"status": model.FileStatusProcessing,
	})
}

func (r *fileRepositoryImpl) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	return r.transition(ctx, id, []model.FileStatus{model.FileStatusProcessing}, map[string]interface{}{
		"status":       model.FileStatusCompleted,
		"chunk_count":  chunkCount,
		"processed_at": time.Now(),
	})
}

func (r *fileRepositoryImpl) MarkFailed(ctx context.Context, id string, message string) error {
	return r.transition(ctx, id, []model.FileStatus{model.FileStatusPending, model.FileStatusProcessing}, map[string]interface{}{
		"status":        model.FileStatusFailed,
		"error_message": message,
		"processed_at":  time.Now(),
	})
}

// transition 仅当当前状态在 from 中时更新
func (r *fileRepositoryImpl) transition(ctx context.Context, id string, from []model.FileStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.UploadedFile{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Delete 删除文件记录
func (r *fileRepositoryImpl) Delete(ctx context.Context, ownerID, id string) error {
	res := r.db.WithContext(ctx).Delete(&model.UploadedFile{}, "id = ? AND owner_id = ?", id, ownerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}
