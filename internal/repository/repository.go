package repository

import "gorm.io/gorm"

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB      *gorm.DB // 直接访问数据库
	File    FileRepository
	Session SessionRepository
}

// NewRepositories 创建关系型仓库；知识库存储按后端单独构建
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:      db,
		File:    NewFileRepository(db),
		Session: NewSessionRepository(db),
	}
}
