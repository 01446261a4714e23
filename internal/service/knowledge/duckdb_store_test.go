package knowledge

import (
	"context"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/pgvector/pgvector-go"
)

func newTestDuckDB(t *testing.T) *DuckDBStore {
	t.Helper()
	s, err := NewDuckDBStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewDuckDBStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(owner, file, topic string, keywords []string, vec []float32) *model.KnowledgeChunk {
	return &model.KnowledgeChunk{
		OwnerID:   owner,
		FileID:    file,
		Content:   topic + " content",
		Topic:     topic,
		Keywords:  keywords,
		Embedding: pgvector.NewVector(vec),
	}
}

func TestDuckDBStore_HybridSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	chunks := []*model.KnowledgeChunk{
		testChunk("u1", "f1", "Cell biology", []string{"cell"}, []float32{0, 1}),
		testChunk("u1", "f1", "Cell energy", []string{"Mitochondria", "CELL"}, []float32{1, 0.1}),
		testChunk("u1", "f1", "Photosynthesis basics", []string{"light"}, []float32{1, 0}),
		testChunk("u1", "f2", "Unrelated", []string{"history"}, []float32{1, 0}),
		testChunk("u2", "f3", "Cell energy", []string{"cell"}, []float32{1, 0}),
	}
	if err := s.PutBatch(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		query        repository.HybridQuery
		want         []string
		wantFallback bool
	}{
		{
			name:  "keyword match ranked by distance",
			query: repository.HybridQuery{OwnerID: "u1", Keywords: []string{"Cell"}, Vector: []float32{1, 0}, Limit: 5},
			want:  []string{"Cell energy", "Cell biology"},
		},
		{
			name:  "topic substring is case-insensitive",
			query: repository.HybridQuery{OwnerID: "u1", TopicPatterns: []string{"PHOTO"}, Vector: []float32{1, 0}, Limit: 5},
			want:  []string{"Photosynthesis basics"},
		},
		{
			name:  "limit truncates",
			query: repository.HybridQuery{OwnerID: "u1", Keywords: []string{"cell"}, TopicPatterns: []string{"photo"}, Vector: []float32{1, 0}, Limit: 2},
			want:  []string{"Photosynthesis basics", "Cell energy"},
		},
		{
			name:         "fallback returns insertion order",
			query:        repository.HybridQuery{OwnerID: "u1", Keywords: []string{"quantum"}, Vector: []float32{1, 0}, Limit: 2, FallbackUnranked: true},
			want:         []string{"Cell biology", "Cell energy"},
			wantFallback: true,
		},
		{
			name:  "no fallback returns empty",
			query: repository.HybridQuery{OwnerID: "u1", Keywords: []string{"quantum"}, Vector: []float32{1, 0}, Limit: 2},
			want:  nil,
		},
		{
			name:  "owner isolation",
			query: repository.HybridQuery{OwnerID: "u3", Keywords: []string{"cell"}, Vector: []float32{1, 0}, Limit: 5, FallbackUnranked: true},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			res, err := s.HybridSearch(ctx, &q)
			if err != nil {
				t.Fatalf("HybridSearch() error = %v", err)
			}
			if len(res.Chunks) != len(tt.want) {
				t.Fatalf("HybridSearch() = %d chunks, want %d", len(res.Chunks), len(tt.want))
			}
			for i, w := range tt.want {
				if res.Chunks[i].Topic != w {
					t.Errorf("rank %d = %q, want %q", i, res.Chunks[i].Topic, w)
				}
				if res.Chunks[i].OwnerID != q.OwnerID {
					t.Errorf("rank %d belongs to %q", i, res.Chunks[i].OwnerID)
				}
			}
			if res.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", res.Fallback, tt.wantFallback)
			}
		})
	}
}

func TestDuckDBStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	c := testChunk("u1", "f1", "Osmosis", []string{"water", "membrane"}, []float32{0.25, 0.5, 1})
	c.Summary = "Water moves across membranes."
	c.Difficulty = model.DifficultyBeginner
	if err := s.Put(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, testChunk("u1", "f2", "Diffusion", nil, []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListByFile(ctx, "u1", "f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("ListByFile() = %d chunks", len(got))
	}
	g := got[0]
	if g.ID != c.ID || g.Summary != c.Summary || g.Difficulty != model.DifficultyBeginner {
		t.Errorf("round trip = %+v", g)
	}
	if len(g.Keywords) != 2 || g.Keywords[1] != "membrane" {
		t.Errorf("keywords = %v", g.Keywords)
	}
	if v := g.Embedding.Slice(); len(v) != 3 || v[0] != 0.25 || v[2] != 1 {
		t.Errorf("embedding = %v", v)
	}

	byTopic, err := s.GetByOwnerAndTopic(ctx, "u1", "OSMO", 10)
	if err != nil || len(byTopic) != 1 {
		t.Fatalf("GetByOwnerAndTopic() = %v, %v", byTopic, err)
	}

	if err := s.DeleteByFile(ctx, "u1", "f1"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ListByFile(ctx, "u1", "f1")
	if len(got) != 0 {
		t.Errorf("chunks remain after DeleteByFile: %d", len(got))
	}
	other, _ := s.ListByFile(ctx, "u1", "f2")
	if len(other) != 1 {
		t.Errorf("DeleteByFile removed another file's chunks")
	}
}

func TestDuckDBStore_PutBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestDuckDB(t)

	first := testChunk("u1", "f1", "A", nil, []float32{1, 0})
	if err := s.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	dup := testChunk("u1", "f2", "B", nil, []float32{1, 0})
	dup2 := testChunk("u1", "f2", "C", nil, []float32{1, 0})
	dup2.ID = first.ID
	if err := s.PutBatch(ctx, []*model.KnowledgeChunk{dup, dup2}); err == nil {
		t.Fatal("PutBatch() with a duplicate id should fail")
	}
	got, _ := s.ListByFile(ctx, "u1", "f2")
	if len(got) != 0 {
		t.Errorf("partial batch persisted: %d chunks", len(got))
	}
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out, err := parseVector(vectorLiteral(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("parseVector(vectorLiteral(%v)) = %v", in, out)
		}
	}
	if v, _ := parseVector("[]"); len(v) != 0 {
		t.Errorf("empty vector = %v", v)
	}
}
