package handler

import (
	"strconv"

	"github.com/ashwinyue/next-tutor/internal/middleware"
	"github.com/ashwinyue/next-tutor/internal/service"
	"github.com/ashwinyue/next-tutor/internal/service/ingest"
	"github.com/gin-gonic/gin"
)

// IngestionHandler 学习资料入库处理器
type IngestionHandler struct {
	svc *service.Services
}

// NewIngestionHandler 创建入库处理器
func NewIngestionHandler(svc *service.Services) *IngestionHandler {
	return &IngestionHandler{svc: svc}
}

// Upload 上传学习资料
// POST /api/v1/ingestion/upload
// 默认同步处理并返回终态；async=true 时立即返回 pending 记录
func (h *IngestionHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required: "+err.Error())
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		Error(c, err)
		return
	}
	defer f.Close()

	up := &ingest.Upload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      f,
	}
	ownerID := middleware.GetOwnerID(c)

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		file, err := h.svc.Ingest.Submit(c.Request.Context(), ownerID, up)
		if err != nil {
			Error(c, err)
			return
		}
		Accepted(c, file)
		return
	}

	file, err := h.svc.Ingest.Ingest(c.Request.Context(), ownerID, up)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, file)
}

// GetStatus 查询文件处理状态
// GET /api/v1/ingestion/status/:file_id
func (h *IngestionHandler) GetStatus(c *gin.Context) {
	file, err := h.svc.Ingest.GetStatus(c.Request.Context(), middleware.GetOwnerID(c), c.Param("file_id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, file)
}

// ListFiles 列出已上传文件
// GET /api/v1/ingestion/files
func (h *IngestionHandler) ListFiles(c *gin.Context) {
	files, err := h.svc.Ingest.ListFiles(c.Request.Context(), middleware.GetOwnerID(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, files)
}

// DeleteFile 删除文件及其知识块
// DELETE /api/v1/ingestion/files/:file_id
func (h *IngestionHandler) DeleteFile(c *gin.Context) {
	if err := h.svc.Ingest.DeleteFile(c.Request.Context(), middleware.GetOwnerID(c), c.Param("file_id")); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

// ListChunks 列出文件的知识块
// GET /api/v1/ingestion/files/:file_id/chunks
func (h *IngestionHandler) ListChunks(c *gin.Context) {
	chunks, err := h.svc.Ingest.ListChunks(c.Request.Context(), middleware.GetOwnerID(c), c.Param("file_id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, chunks)
}
