// Package ingest 文档入库：提取 -> 分块 -> 元数据 -> 向量化 -> 写入知识库
//
// 单个文件的失败只记录在 UploadedFile 的状态上，不会影响其他文件。
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/extract"
	"github.com/ashwinyue/next-tutor/internal/service/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = extract.ErrUnsupportedType
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidID       = errors.New("invalid id format")
	ErrFileProcessing  = errors.New("file is still being processed")
	ErrClosed          = errors.New("ingestion service is shut down")
)

// 处理失败时写入 ErrorMessage 的前缀
const (
	stageExtract = "text extraction failed"
	stageChunk   = "chunking failed"
	stageEmbed   = "embedding failed"
	stageStore   = "store write failed"
)

// TextExtractor 文本提取
type TextExtractor interface {
	Supports(ext string) bool
	Extract(ctx context.Context, ext string, r io.Reader) (string, error)
}

// MetadataEnricher 批量元数据生成，不会失败
type MetadataEnricher interface {
	EnrichAll(ctx context.Context, texts []string) []model.ChunkMetadata
}

// BatchEmbedder 批量向量化，保持输入顺序
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Upload 一次上传
type Upload struct {
	FileName    string
	ContentType string
	Size        int64 // 未知时为 0
	Reader      io.Reader
}

// Config 入库参数
type Config struct {
	AllowedExtensions []string
	MaxUploadBytes    int64
	Workers           int
	QueueSize         int
	ProcessTimeout    time.Duration // 单个文件的处理超时，0 表示不限制
}

// Service 入库服务
type Service struct {
	files     repository.FileRepository
	store     repository.KnowledgeStore
	storage   file.Storage
	extractor TextExtractor
	splitter  document.Transformer
	enricher  MetadataEnricher
	embedder  BatchEmbedder
	cfg       Config
	allowed   map[string]struct{}
	log       *logger.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan *model.UploadedFile
	wg     sync.WaitGroup
}

// Option 配置项
type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService 创建入库服务并启动 worker
func NewService(
	files repository.FileRepository,
	store repository.KnowledgeStore,
	storage file.Storage,
	extractor TextExtractor,
	splitter document.Transformer,
	enricher MetadataEnricher,
	embedder BatchEmbedder,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 16
	}
	s := &Service{
		files:     files,
		store:     store,
		storage:   storage,
		extractor: extractor,
		splitter:  splitter,
		enricher:  enricher,
		embedder:  embedder,
		cfg:       cfg,
		allowed:   make(map[string]struct{}, len(cfg.AllowedExtensions)),
		log:       logger.NewNop(),
		jobs:      make(chan *model.UploadedFile, cfg.QueueSize),
	}
	for _, ext := range cfg.AllowedExtensions {
		s.allowed[normalizeExt(ext)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Ingest 同步入库，返回处于终态的文件记录
// 只有请求本身不合法时才返回错误，处理失败体现在文件状态上
func (s *Service) Ingest(ctx context.Context, ownerID string, up *Upload) (*model.UploadedFile, error) {
	f, err := s.accept(ctx, ownerID, up)
	if err != nil {
		return nil, err
	}
	s.process(ctx, f)
	// 请求被取消时仍返回已落库的终态
	return s.files.GetByID(context.WithoutCancel(ctx), ownerID, f.ID)
}

// Submit 异步入库，立即返回 pending 状态的文件记录
func (s *Service) Submit(ctx context.Context, ownerID string, up *Upload) (*model.UploadedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := s.accept(ctx, ownerID, up)
	if err != nil {
		return nil, err
	}
	select {
	case s.jobs <- f:
		return f, nil
	case <-ctx.Done():
		s.fail(context.WithoutCancel(ctx), f, "queue", ctx.Err())
		return nil, ctx.Err()
	}
}

// Shutdown 停止接收新任务并等待队列处理完
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for f := range s.jobs {
		s.process(context.Background(), f)
	}
}

// GetStatus 获取文件处理状态
func (s *Service) GetStatus(ctx context.Context, ownerID, fileID string) (*model.UploadedFile, error) {
	if err := validateID(ownerID, fileID); err != nil {
		return nil, err
	}
	return s.files.GetByID(ctx, ownerID, fileID)
}

// ListFiles 列出学习者的文件
func (s *Service) ListFiles(ctx context.Context, ownerID string) ([]*model.UploadedFile, error) {
	if err := validateID(ownerID); err != nil {
		return nil, err
	}
	return s.files.ListByOwner(ctx, ownerID)
}

// ListChunks 列出文件产生的知识块
func (s *Service) ListChunks(ctx context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error) {
	if _, err := s.GetStatus(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	return s.store.ListByFile(ctx, ownerID, fileID)
}

// DeleteFile 删除文件及其知识块和原始内容
func (s *Service) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	f, err := s.GetStatus(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	if !f.Status.Terminal() {
		return ErrFileProcessing
	}
	if err := s.store.DeleteByFile(ctx, ownerID, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.storage.Delete(ctx, f.StoragePath); err != nil {
		s.log.Warn("failed to delete stored object", "file_id", fileID, "error", err)
	}
	return s.files.Delete(ctx, ownerID, fileID)
}

// accept 校验上传并保存原始内容，创建 pending 记录
func (s *Service) accept(ctx context.Context, ownerID string, up *Upload) (*model.UploadedFile, error) {
	if err := validateID(ownerID); err != nil {
		return nil, err
	}
	ext := normalizeExt(filepath.Ext(up.FileName))
	if _, ok := s.allowed[ext]; !ok || !s.extractor.Supports(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, up.FileName)
	}
	if s.cfg.MaxUploadBytes > 0 && up.Size > s.cfg.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	data, err := readLimited(up.Reader, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	mime, err := extract.DetectMIME(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}

	f := &model.UploadedFile{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		OriginalName: filepath.Base(up.FileName),
		FileType:     ext,
		MimeType:     mime,
		Size:         int64(len(data)),
	}
	f.StoragePath, err = s.storage.Save(ctx, &file.SaveRequest{
		OwnerID:     ownerID,
		FileID:      f.ID,
		Ext:         ext,
		ContentType: mime,
		Size:        f.Size,
		Reader:      bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := s.files.Create(ctx, f); err != nil {
		_ = s.storage.Delete(context.WithoutCancel(ctx), f.StoragePath)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.log.Info("file accepted", "file_id", f.ID, "owner_id", ownerID, "type", ext, "size", f.Size)
	return f, nil
}

// process 执行入库流水线；所有结果都落在文件状态上
// 状态写入使用不可取消的 ctx，调用方取消或超时后文件仍会进入终态
func (s *Service) process(ctx context.Context, f *model.UploadedFile) {
	statusCtx := context.WithoutCancel(ctx)
	if s.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProcessTimeout)
		defer cancel()
	}
	start := time.Now()

	if err := s.files.MarkProcessing(statusCtx, f.ID); err != nil {
		s.log.Error("failed to mark file processing", "file_id", f.ID, "error", err)
		return
	}

	chunks, stage, err := s.build(ctx, f)
	if err == nil {
		stage = stageStore
		err = s.store.PutBatch(ctx, chunks)
	}
	if err != nil {
		s.fail(statusCtx, f, stage, err)
		return
	}

	if err := s.files.MarkCompleted(statusCtx, f.ID, len(chunks)); err != nil {
		s.log.Error("failed to mark file completed", "file_id", f.ID, "error", err)
		return
	}
	s.log.Info("file ingested", "file_id", f.ID, "chunks", len(chunks), "duration", time.Since(start).String())
}

// build 生成待写入的知识块，全部向量化成功才返回
func (s *Service) build(ctx context.Context, f *model.UploadedFile) ([]*model.KnowledgeChunk, string, error) {
	rc, err := s.storage.Open(ctx, f.StoragePath)
	if err != nil {
		return nil, stageExtract, err
	}
	text, err := s.extractor.Extract(ctx, f.FileType, rc)
	rc.Close()
	if err != nil {
		return nil, stageExtract, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, stageExtract, errors.New("no text found in file")
	}

	docs, err := s.splitter.Transform(ctx, []*schema.Document{{ID: f.ID, Content: text}})
	if err != nil {
		return nil, stageChunk, err
	}
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			texts = append(texts, d.Content)
		}
	}
	if len(texts) == 0 {
		return nil, stageChunk, errors.New("document produced no chunks")
	}

	metas := s.enricher.EnrichAll(ctx, texts)
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, stageEmbed, err
	}

	chunks := make([]*model.KnowledgeChunk, len(texts))
	for i, text := range texts {
		chunks[i] = newChunk(f, text, metas[i], vectors[i])
	}
	return chunks, "", nil
}

func (s *Service) fail(ctx context.Context, f *model.UploadedFile, stage string, cause error) {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	if err := s.files.MarkFailed(ctx, f.ID, msg); err != nil {
		s.log.Error("failed to mark file failed", "file_id", f.ID, "error", err)
	}
	s.log.Warn("file ingestion failed", "file_id", f.ID, "stage", stage, "error", cause)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func validateID(ids ...string) error {
	for _, id := range ids {
		if err := uuid.Validate(id); err != nil {
			return ErrInvalidID
		}
	}
	return nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
