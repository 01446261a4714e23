// Package knowledge 知识块存储后端
// pgvector 与 memory 实现在 repository 包，这里提供 Elasticsearch 与 DuckDB 实现以及按配置选择后端
package knowledge

import (
	"context"
	"fmt"
	"io"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"gorm.io/gorm"
)

// NewStore 按 store.backend 创建知识块存储
// 返回的 io.Closer 可能为 nil
func NewStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (repository.KnowledgeStore, io.Closer, error) {
	switch cfg.Store.Backend {
	case "pgvector", "":
		if db == nil {
			return nil, nil, fmt.Errorf("pgvector store requires a database")
		}
		return repository.NewKnowledgeRepository(db), nil, nil
	case "elastic":
		client, err := NewESClient(&cfg.Elastic)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ES client: %w", err)
		}
		s, err := NewESStore(ctx, client, cfg.Elastic.IndexPrefix+"_chunks", cfg.AI.Embedding.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "duckdb":
		s, err := NewDuckDBStore(ctx, cfg.DuckDB.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		return repository.NewMemoryKnowledgeStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
