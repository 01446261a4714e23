package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/chunker"
	"github.com/ashwinyue/next-tutor/internal/service/enrich"
	"github.com/ashwinyue/next-tutor/internal/service/extract"
	"github.com/ashwinyue/next-tutor/internal/service/file"
	"github.com/ashwinyue/next-tutor/internal/testutil"
	"github.com/google/uuid"
)

type fakeEnricher struct{}

func (fakeEnricher) EnrichAll(_ context.Context, texts []string) []model.ChunkMetadata {
	out := make([]model.ChunkMetadata, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "chlorophyll") {
			out[i] = model.ChunkMetadata{Topic: "Photosynthesis", Keywords: []string{"chlorophyll"}, Difficulty: model.DifficultyBeginner, Summary: "pigments"}
			continue
		}
		out[i] = enrich.Degraded(t)
	}
	return out
}

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
	block bool // 阻塞到 ctx 结束
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := testutil.HashVector(t, 8)
		out[i] = make([]float32, len(v))
		for j, x := range v {
			out[i][j] = float32(x)
		}
	}
	return out, nil
}

type failingStore struct {
	*repository.MemoryKnowledgeStore
}

func (failingStore) PutBatch(context.Context, []*model.KnowledgeChunk) error {
	return errors.New("disk full")
}

// cancelingStore 在写入时取消调用方的 ctx，模拟客户端断开
type cancelingStore struct {
	*repository.MemoryKnowledgeStore
	cancel context.CancelFunc
}

func (s cancelingStore) PutBatch(ctx context.Context, _ []*model.KnowledgeChunk) error {
	s.cancel()
	return ctx.Err()
}

type fixture struct {
	svc      *Service
	files    repository.FileRepository
	store    *repository.MemoryKnowledgeStore
	storage  *file.LocalStorage
	embedder *fakeEmbedder
	owner    string
}

func newFixture(t *testing.T, wrap func(repository.KnowledgeStore) repository.KnowledgeStore) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, wrap, nil)
}

func newFixtureWithConfig(t *testing.T, wrap func(repository.KnowledgeStore) repository.KnowledgeStore, tweak func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	storage, err := file.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	registry, err := extract.NewRegistry(ctx)
	if err != nil {
		t.Fatal(err)
	}
	splitter, err := chunker.New(750, 150)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		files:    repository.NewFileRepository(testutil.NewTestDB(t)),
		store:    repository.NewMemoryKnowledgeStore(),
		storage:  storage,
		embedder: &fakeEmbedder{},
		owner:    uuid.NewString(),
	}
	var store repository.KnowledgeStore = f.store
	if wrap != nil {
		store = wrap(store)
	}
	cfg := Config{
		AllowedExtensions: []string{"pdf", "docx", "txt", "csv"},
		MaxUploadBytes:    1 << 20,
		Workers:           2,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	f.svc = NewService(f.files, store, storage, registry, splitter, fakeEnricher{}, f.embedder, cfg)
	t.Cleanup(func() { _ = f.svc.Shutdown(context.Background()) })
	return f
}

func photosynthesisText() string {
	paragraphs := []string{
		"Photosynthesis is the process by which green plants convert light energy into chemical energy. ",
		"It takes place mainly in the leaves, inside organelles called chloroplasts. ",
		"The pigment chlorophyll absorbs red and blue light and reflects green light. ",
		"During the light-dependent reactions, water is split and oxygen is released. ",
		"The Calvin cycle then uses carbon dioxide to build glucose molecules. ",
	}
	var b strings.Builder
	for b.Len() < 2000 {
		for _, p := range paragraphs {
			b.WriteString(p)
		}
		b.WriteString("\n\n")
	}
	return b.String()[:2000]
}

func upload(name, content string) *Upload {
	return &Upload{FileName: name, Size: int64(len(content)), Reader: strings.NewReader(content)}
}

func TestIngest_Completed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	got, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got.Status != model.FileStatusCompleted {
		t.Fatalf("Status = %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.ChunkCount < 2 || got.ProcessedAt == nil || got.FileType != "txt" || got.Size != 2000 {
		t.Errorf("file = %+v", got)
	}

	chunks, err := f.svc.ListChunks(ctx, f.owner, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != got.ChunkCount {
		t.Fatalf("ListChunks() = %d, want %d", len(chunks), got.ChunkCount)
	}
	var enriched bool
	for _, c := range chunks {
		if c.OwnerID != f.owner || c.FileID != got.ID || len([]rune(c.Content)) > 750 {
			t.Errorf("chunk = %+v", c)
		}
		if len(c.Embedding.Slice()) != 8 {
			t.Errorf("embedding dims = %d", len(c.Embedding.Slice()))
		}
		if c.Topic == "Photosynthesis" {
			enriched = true
		}
	}
	if !enriched {
		t.Error("expected at least one enriched chunk")
	}
}

func TestIngest_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		owner   string
		up      *Upload
		wantErr error
	}{
		{"invalid owner", "owner", upload("a.txt", "x"), ErrInvalidID},
		{"extension not allowed", f.owner, upload("a.exe", "x"), ErrUnsupportedType},
		{"image without ocr", f.owner, upload("a.png", "x"), ErrUnsupportedType},
		{"declared size too large", f.owner, &Upload{FileName: "a.txt", Size: 2 << 20, Reader: strings.NewReader("x")}, ErrFileTooLarge},
		{"actual size too large", f.owner, &Upload{FileName: "a.txt", Reader: strings.NewReader(strings.Repeat("x", 1<<20+1))}, ErrFileTooLarge},
		{"empty", f.owner, upload("a.txt", ""), ErrEmptyFile},
		{"content mismatch", f.owner, upload("a.pdf", "plain text pretending"), ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(ctx, tt.owner, tt.up)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	files, err := f.svc.ListFiles(ctx, f.owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("rejected uploads created %d records", len(files))
	}
}

func TestIngest_EmbeddingFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.embedder.err = errors.New("backend unreachable")

	got, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got.Status != model.FileStatusFailed || !strings.Contains(got.ErrorMessage, stageEmbed) {
		t.Errorf("file = %s %q", got.Status, got.ErrorMessage)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d chunks after failure", f.store.Len())
	}
}

func TestIngest_StoreFailureMarksFailed(t *testing.T) {
	f := newFixture(t, func(s repository.KnowledgeStore) repository.KnowledgeStore {
		return failingStore{s.(*repository.MemoryKnowledgeStore)}
	})
	got, err := f.svc.Ingest(context.Background(), f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.FileStatusFailed || !strings.Contains(got.ErrorMessage, "disk full") {
		t.Errorf("file = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestIngest_CanceledRequestMarksFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, func(s repository.KnowledgeStore) repository.KnowledgeStore {
		return cancelingStore{MemoryKnowledgeStore: s.(*repository.MemoryKnowledgeStore), cancel: cancel}
	})

	got, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if got.Status != model.FileStatusFailed || !strings.Contains(got.ErrorMessage, stageStore) {
		t.Fatalf("file = %s %q, want failed with message", got.Status, got.ErrorMessage)
	}

	stored, err := f.files.GetByID(context.Background(), f.owner, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.FileStatusFailed || stored.ErrorMessage == "" {
		t.Errorf("stored file = %s %q", stored.Status, stored.ErrorMessage)
	}
	if err := f.svc.DeleteFile(context.Background(), f.owner, got.ID); err != nil {
		t.Errorf("DeleteFile() error = %v", err)
	}
}

func TestIngest_ProcessTimeoutMarksFailed(t *testing.T) {
	f := newFixtureWithConfig(t, nil, func(c *Config) { c.ProcessTimeout = 50 * time.Millisecond })
	f.embedder.block = true

	got, err := f.svc.Ingest(context.Background(), f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.FileStatusFailed || !strings.Contains(got.ErrorMessage, stageEmbed) {
		t.Errorf("file = %s %q", got.Status, got.ErrorMessage)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d chunks after timeout", f.store.Len())
	}
}

func TestIngest_ExtractionFailureMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.svc.Ingest(context.Background(), f.owner, upload("notes.csv", "a,b\n\xff\xfe,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.FileStatusFailed || !strings.Contains(got.ErrorMessage, stageExtract) {
		t.Errorf("file = %s %q", got.Status, got.ErrorMessage)
	}
	if f.embedder.calls != 0 {
		t.Error("embedder should not be called when extraction fails")
	}
}

func TestIngest_WhitespaceOnlyFails(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.svc.Ingest(context.Background(), f.owner, upload("blank.txt", " \n\n\t "))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.FileStatusFailed {
		t.Errorf("Status = %s", got.Status)
	}
}

func TestIngest_ReingestCreatesIndependentChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	text := photosynthesisText()

	a, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", text))
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", text))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || a.ChunkCount != b.ChunkCount {
		t.Fatalf("a = %+v, b = %+v", a, b)
	}
	if f.store.Len() != a.ChunkCount+b.ChunkCount {
		t.Errorf("store has %d chunks, want %d", f.store.Len(), a.ChunkCount+b.ChunkCount)
	}
}

func waitForStatus(t *testing.T, f *fixture, fileID string) *model.UploadedFile {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.svc.GetStatus(context.Background(), f.owner, fileID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status.Terminal() {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file %s did not finish", fileID)
	return nil
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	pending, err := f.svc.Submit(ctx, f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if pending.Status != model.FileStatusPending {
		t.Errorf("Status = %s, want pending", pending.Status)
	}
	if got := waitForStatus(t, f, pending.ID); got.Status != model.FileStatusCompleted {
		t.Errorf("Status = %s (%s)", got.Status, got.ErrorMessage)
	}

	if err := f.svc.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, f.owner, upload("notes.txt", "x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after shutdown error = %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	got, err := f.svc.Ingest(ctx, f.owner, upload("notes.txt", photosynthesisText()))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteFile(ctx, uuid.NewString(), got.ID); !errors.Is(err, repository.ErrFileNotFound) {
		t.Errorf("foreign owner delete error = %v", err)
	}
	if err := f.svc.DeleteFile(ctx, f.owner, got.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d chunks after delete", f.store.Len())
	}
	if _, err := f.storage.Open(ctx, got.StoragePath); !errors.Is(err, file.ErrObjectNotFound) {
		t.Errorf("stored object still present: %v", err)
	}
	if _, err := f.svc.GetStatus(ctx, f.owner, got.ID); !errors.Is(err, repository.ErrFileNotFound) {
		t.Errorf("GetStatus() after delete error = %v", err)
	}
}

func TestDeleteFile_Pending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	pending := &model.UploadedFile{ID: uuid.NewString(), OwnerID: f.owner, FileType: "txt"}
	if err := f.files.Create(ctx, pending); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteFile(ctx, f.owner, pending.ID); !errors.Is(err, ErrFileProcessing) {
		t.Errorf("error = %v, want ErrFileProcessing", err)
	}
}

func TestWatcher(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	w, err := NewWatcher(f.svc, dir, f.owner, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := os.WriteFile(filepath.Join(dir, "ignored.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(photosynthesisText()), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		files, err := f.svc.ListFiles(context.Background(), f.owner)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) == 1 && files[0].Status == model.FileStatusCompleted {
			if files[0].OriginalName != "notes.txt" {
				t.Errorf("OriginalName = %q", files[0].OriginalName)
			}
			return
		}
		if len(files) > 1 {
			t.Fatalf("watcher ingested %d files, want 1", len(files))
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watched file was not ingested")
}

func TestNewWatcher_InvalidOwner(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := NewWatcher(f.svc, t.TempDir(), "", 0, nil); !errors.Is(err, ErrInvalidID) {
		t.Errorf("error = %v, want ErrInvalidID", err)
	}
}
