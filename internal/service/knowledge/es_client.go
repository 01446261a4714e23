package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewESClient 创建 ES8 客户端
func NewESClient(cfg *config.ElasticConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// chunkIndexMapping 知识块索引映射
func chunkIndexMapping(dimensions int) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"owner_id":    map[string]any{"type": "keyword"},
				"file_id":     map[string]any{"type": "keyword"},
				"content":     map[string]any{"type": "text"},
				"topic":       map[string]any{"type": "keyword"},
				"keywords":    map[string]any{"type": "keyword"},
				"keywords_lc": map[string]any{"type": "keyword"},
				"difficulty":  map[string]any{"type": "keyword"},
				"summary":     map[string]any{"type": "text"},
				"seq":         map[string]any{"type": "long"},
				"created_at":  map[string]any{"type": "date"},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       dimensions,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}
}

// ensureESIndex 确保索引存在（如不存在则创建）
func ensureESIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dimensions int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(chunkIndexMapping(dimensions))
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}
	res, err = req.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// esHit 搜索命中
type esHit struct {
	ID     string   `json:"_id"`
	Score  *float64 `json:"_score"`
	Source esChunk  `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// doSearch 执行搜索并解析命中
func doSearch(ctx context.Context, client *elasticsearch.Client, index string, query map[string]any) ([]esHit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(index),
		client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	var parsed esSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return parsed.Hits.Hits, nil
}

// deleteByQuery 按查询删除并刷新
func deleteByQuery(ctx context.Context, client *elasticsearch.Client, index string, query map[string]any) error {
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}
	res, err := client.DeleteByQuery(
		[]string{index},
		bytes.NewReader(body),
		client.DeleteByQuery.WithContext(ctx),
		client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}
