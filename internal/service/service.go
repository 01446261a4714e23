// Package service 组装各业务组件
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/callback"
	"github.com/ashwinyue/next-tutor/internal/service/chunker"
	"github.com/ashwinyue/next-tutor/internal/service/embedder"
	"github.com/ashwinyue/next-tutor/internal/service/enrich"
	"github.com/ashwinyue/next-tutor/internal/service/evaluation"
	"github.com/ashwinyue/next-tutor/internal/service/extract"
	"github.com/ashwinyue/next-tutor/internal/service/file"
	"github.com/ashwinyue/next-tutor/internal/service/ingest"
	"github.com/ashwinyue/next-tutor/internal/service/knowledge"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
	"github.com/ashwinyue/next-tutor/internal/service/retrieval"
	"github.com/ashwinyue/next-tutor/internal/service/tutor"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *gorm.DB
	Store     repository.KnowledgeStore
	Redis     *redis.Client
	Ingest    *ingest.Service
	Retriever *retrieval.Retriever
	Tutor     *tutor.Engine
	Evaluator *evaluation.Evaluator

	closers []io.Closer
}

// Backends 外部模型后端，测试时可注入假实现
type Backends struct {
	ChatModel model.BaseChatModel
	Embedder  embedding.Embedder
	OCR       extract.OCR
}

// NewServices 按配置创建模型后端并组装所有服务
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, redisClient *redis.Client, log *logger.Logger) (*Services, error) {
	callback.SetupGlobalCallbacks(log, cfg.App.Debug)

	chatModel, err := newChatModel(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	emb, err := newEmbedder(ctx, &cfg.AI.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	backends := &Backends{ChatModel: chatModel, Embedder: emb}
	var closers []io.Closer
	if cfg.Vision.Enabled {
		ocr, err := extract.NewVisionOCR(ctx, cfg.Vision.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision client: %w", err)
		}
		backends.OCR = ocr
		closers = append(closers, ocr)
	}

	s, err := Assemble(ctx, cfg, repos, redisClient, backends, log)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	s.closers = append(s.closers, closers...)
	return s, nil
}

// Assemble 用给定后端组装服务
func Assemble(ctx context.Context, cfg *config.Config, repos *repository.Repositories, redisClient *redis.Client, b *Backends, log *logger.Logger) (*Services, error) {
	store, storeCloser, err := knowledge.NewStore(ctx, cfg, repos.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge store: %w", err)
	}
	s := &Services{Config: cfg, Log: log, DB: repos.DB, Store: store, Redis: redisClient}
	if storeCloser != nil {
		s.closers = append(s.closers, storeCloser)
	}

	genOpts := []llm.Option{
		llm.WithTimeout(time.Duration(cfg.AI.Timeout) * time.Second),
		llm.WithMaxRetries(cfg.AI.MaxRetries),
		llm.WithLogger(log),
	}
	gen := llm.NewChatGenerator(b.ChatModel, append(genOpts,
		llm.WithName("tutor"),
		llm.WithTemperature(cfg.AI.Temperature))...)
	evalGen := llm.NewChatGenerator(b.ChatModel, append(genOpts,
		llm.WithName("evaluator"),
		llm.WithTemperature(cfg.AI.EvaluationTemperature))...)

	vectors := embedder.New(b.Embedder, cfg.AI.Embedding.Dimensions, cfg.AI.Embedding.BatchSize, cfg.AI.Embedding.Concurrency)

	// 检索
	retrievalOpts := []retrieval.Option{
		retrieval.WithMaxKeywords(cfg.Retrieval.MaxKeywords),
		retrieval.WithMaxTopK(cfg.Retrieval.MaxTopK),
		retrieval.WithFallbackUnranked(cfg.Store.FallbackUnranked),
		retrieval.WithLogger(log.With("component", "retrieval")),
	}
	if redisClient != nil && cfg.Retrieval.ExpansionCacheTTL > 0 {
		ttl := time.Duration(cfg.Retrieval.ExpansionCacheTTL) * time.Second
		retrievalOpts = append(retrievalOpts, retrieval.WithCache(retrieval.NewRedisExpansionCache(redisClient, ttl)))
	}
	s.Retriever = retrieval.New(gen, vectors, store, retrievalOpts...)

	// 教学会话
	s.Evaluator = evaluation.NewEvaluator(evalGen, log.With("component", "evaluation"))
	tutorOpts := []tutor.Option{tutor.WithLogger(log.With("component", "tutor"))}
	if redisClient != nil {
		tutorOpts = append(tutorOpts, tutor.WithLocker(
			tutor.NewRedisLocker(redisClient, time.Duration(cfg.Teaching.LockTTL)*time.Second)))
	}
	if cfg.Teaching.QuickFeedback {
		tutorOpts = append(tutorOpts, tutor.WithAnswerChecker(s.Evaluator))
	}
	s.Tutor = tutor.NewEngine(s.Retriever, gen, repos.Session, s.Evaluator, tutor.Config{
		MaxQuestions: cfg.Teaching.MaxQuestions,
		TopK:         cfg.Teaching.TopK,
	}, tutorOpts...)

	// 入库
	storage, err := file.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to create upload storage: %w", err)
	}
	extractOpts := []extract.Option{extract.WithLogger(log)}
	if b.OCR != nil {
		extractOpts = append(extractOpts, extract.WithOCR(b.OCR))
	}
	extractor, err := extract.NewRegistry(ctx, extractOpts...)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	splitter, err := chunker.NewTransformer(ctx, &cfg.Chunking)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.Ingest = ingest.NewService(
		repos.File,
		store,
		storage,
		extractor,
		splitter,
		enrich.New(gen, cfg.Ingestion.EnrichConcurrency, log.With("component", "enrich")),
		vectors,
		ingest.Config{
			AllowedExtensions: cfg.Ingestion.AllowedExtensions,
			MaxUploadBytes:    cfg.Ingestion.MaxUploadBytes(),
			Workers:           cfg.Ingestion.Workers,
			QueueSize:         cfg.Ingestion.QueueSize,
			ProcessTimeout:    time.Duration(cfg.Ingestion.ProcessTimeout) * time.Second,
		},
		ingest.WithLogger(log.With("component", "ingest")),
	)
	return s, nil
}

// Close 等待入库队列结束并释放存储资源
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Ingest != nil {
		errs = append(errs, s.Ingest.Shutdown(ctx))
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
