package handler

import (
	"github.com/ashwinyue/next-tutor/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Ingestion *IngestionHandler
	Retrieval *RetrievalHandler
	Teaching  *TeachingHandler
	System    *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Ingestion: NewIngestionHandler(svc),
		Retrieval: NewRetrievalHandler(svc),
		Teaching:  NewTeachingHandler(svc),
		System:    NewSystemHandler(svc),
	}
}
