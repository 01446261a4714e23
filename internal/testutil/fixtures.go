package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/config"
)

// NewTestConfig 使用内存知识库和本地临时目录的最小配置
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.App = config.AppConfig{Name: "next-tutor", Version: "test"}
	cfg.Store = config.StoreConfig{Backend: "memory", FallbackUnranked: true}
	cfg.Storage = config.StorageConfig{Type: "local", BasePath: t.TempDir()}
	cfg.AI = config.AIConfig{
		Provider:              "openai",
		Temperature:           0.7,
		EvaluationTemperature: 0.8,
		Embedding:             config.EmbeddingConfig{Dimensions: 32, BatchSize: 4, Concurrency: 2},
	}
	cfg.Chunking = config.ChunkingConfig{Engine: "builtin", ChunkSize: 750, ChunkOverlap: 150, HardCut: true}
	cfg.Ingestion = config.IngestionConfig{
		AllowedExtensions: []string{"pdf", "docx", "txt", "csv"},
		MaxUploadMB:       1,
		Workers:           2,
		EnrichConcurrency: 2,
		QueueSize:         8,
		ProcessTimeout:    30,
	}
	cfg.Retrieval = config.RetrievalConfig{TopK: 6, MaxTopK: 20, MaxKeywords: 12}
	cfg.Teaching = config.TeachingConfig{MaxQuestions: 3, TopK: 6, SuggestTopics: 5, SuggestSample: 20}
	return cfg
}

// NewTutorChatModel 按提示词中的结构名称回复固定内容
// 学习资料主题固定为 Photosynthesis，第 n 个问题为 "What happens in step n?"
func NewTutorChatModel() *FakeChatModel {
	var mu sync.Mutex
	question := 0
	return &FakeChatModel{
		Routes: map[string]func(string) (string, error){
			"TopicMetadata": func(string) (string, error) {
				return `{"topic": "Photosynthesis", "keywords": ["photosynthesis", "chlorophyll", "light"], "difficulty": "beginner", "summary": "How plants make glucose."}`, nil
			},
			"KeywordExpansion": func(string) (string, error) {
				return "```json\n{\"keywords\": [\"chlorophyll\", \"light energy\"]}\n```", nil
			},
			"EvaluationResult": func(string) (string, error) {
				return `{"grade": "b", "correct_concepts": ["light is converted to chemical energy"], "misconceptions": [], "improvement_tips": ["explain the Calvin cycle"]}`, nil
			},
			"TopicSuggestions": func(string) (string, error) {
				return `{"topics": ["Photosynthesis", "Light reactions", "Calvin cycle"]}`, nil
			},
			"AnswerCheck": func(string) (string, error) {
				return `{"is_correct": true, "feedback": "Good."}`, nil
			},
			"naive student": func(string) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				question++
				return fmt.Sprintf("Question: What happens in step %d?", question), nil
			},
		},
	}
}
