package ingest

import (
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

func newChunk(f *model.UploadedFile, text string, meta model.ChunkMetadata, vector []float32) *model.KnowledgeChunk {
	keywords := meta.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return &model.KnowledgeChunk{
		ID:         uuid.New().String(),
		OwnerID:    f.OwnerID,
		FileID:     f.ID,
		Content:    text,
		Embedding:  pgvector.NewVector(vector),
		Topic:      meta.Topic,
		Keywords:   keywords,
		Difficulty: meta.Difficulty,
		Summary:    meta.Summary,
		Seq:        model.NextSeq(),
	}
}
