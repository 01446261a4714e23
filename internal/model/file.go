package model

import (
	"time"
)

// FileStatus 文件处理状态
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// Terminal 是否为终态
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// UploadedFile 上传的源文件
type UploadedFile struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	OwnerID      string     `json:"owner_id" gorm:"index;size:36;not null"`
	OriginalName string     `json:"original_name" gorm:"size:255"`
	StoragePath  string     `json:"storage_path" gorm:"size:512"`
	FileType     string     `json:"file_type" gorm:"size:20"` // 扩展名，不含点
	MimeType     string     `json:"mime_type" gorm:"size:128"`
	Size         int64      `json:"size"`
	Status       FileStatus `json:"status" gorm:"size:20;index;default:pending"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	ChunkCount   int        `json:"chunk_count"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// TableName 指定表名
func (UploadedFile) TableName() string {
	return "uploaded_files"
}
