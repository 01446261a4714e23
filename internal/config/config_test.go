package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Chunking.ChunkSize != 750 {
		t.Errorf("ChunkSize = %d, want 750", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.ChunkOverlap != 150 {
		t.Errorf("ChunkOverlap = %d, want 150", cfg.Chunking.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("Retrieval.TopK = %d, want 6", cfg.Retrieval.TopK)
	}
	if cfg.Teaching.MaxQuestions != 3 {
		t.Errorf("MaxQuestions = %d, want 3", cfg.Teaching.MaxQuestions)
	}
	if cfg.AI.Embedding.Dimensions != 1536 {
		t.Errorf("Dimensions = %d, want 1536", cfg.AI.Embedding.Dimensions)
	}
	if !cfg.Store.FallbackUnranked {
		t.Error("FallbackUnranked should default to true")
	}
	if got := cfg.Ingestion.MaxUploadBytes(); got != 16<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", got, 16<<20)
	}
	if cfg.Ingestion.QueueSize != 64 || cfg.Ingestion.ProcessTimeout != 600 {
		t.Errorf("Ingestion queue/timeout = %d/%d, want 64/600", cfg.Ingestion.QueueSize, cfg.Ingestion.ProcessTimeout)
	}
	if cfg.Retrieval.MaxTopK != 50 {
		t.Errorf("Retrieval.MaxTopK = %d, want 50", cfg.Retrieval.MaxTopK)
	}
	if cfg.Teaching.SuggestTopics != 5 {
		t.Errorf("Teaching.SuggestTopics = %d, want 5", cfg.Teaching.SuggestTopics)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("teaching:\n  maxQuestions: 5\nstore:\n  backend: memory\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEXT_TUTOR_RETRIEVAL_TOPK", "9")
	t.Setenv("NEXT_TUTOR_INGESTION_PROCESSTIMEOUT", "45")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Teaching.MaxQuestions != 5 {
		t.Errorf("MaxQuestions = %d, want 5", cfg.Teaching.MaxQuestions)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("Retrieval.TopK = %d, want 9", cfg.Retrieval.TopK)
	}
	if cfg.Ingestion.ProcessTimeout != 45 {
		t.Errorf("Ingestion.ProcessTimeout = %d, want 45", cfg.Ingestion.ProcessTimeout)
	}
	if cfg.Chunking.ChunkSize != 750 {
		t.Errorf("defaults must still apply, ChunkSize = %d", cfg.Chunking.ChunkSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "next-tutor" {
		t.Errorf("App.Name = %q", cfg.App.Name)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Chunking:  ChunkingConfig{ChunkSize: 750, ChunkOverlap: 150},
			Teaching:  TeachingConfig{MaxQuestions: 3},
			Retrieval: RetrievalConfig{TopK: 6, MaxTopK: 50},
			AI:        AIConfig{Embedding: EmbeddingConfig{Dimensions: 1536}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "overlap equals size", mutate: func(c *Config) { c.Chunking.ChunkOverlap = 750 }, wantErr: true},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.ChunkOverlap = -1 }, wantErr: true},
		{name: "zero questions", mutate: func(c *Config) { c.Teaching.MaxQuestions = 0 }, wantErr: true},
		{name: "max top_k below default", mutate: func(c *Config) { c.Retrieval.MaxTopK = 3 }, wantErr: true},
		{name: "unbounded top_k", mutate: func(c *Config) { c.Retrieval.MaxTopK = 0 }},
		{name: "zero dimensions", mutate: func(c *Config) { c.AI.Embedding.Dimensions = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
