// Package model 学习资料、知识块和教学会话的数据模型
package model

// AllModels 关系库中的模型，用于 AutoMigrate
var AllModels = []interface{}{
	&UploadedFile{},
	&TeachingSession{},
	&Answer{},
}

// VectorModels 依赖 pgvector 扩展的模型
var VectorModels = []interface{}{
	&KnowledgeChunk{},
}
