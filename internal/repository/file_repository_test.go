package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/testutil"
	"github.com/google/uuid"
)

func TestFileRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(testutil.NewTestDB(t))

	f := &model.UploadedFile{ID: uuid.New().String(), OwnerID: "owner-1", OriginalName: "notes.txt", FileType: "txt"}
	if err := repo.Create(ctx, f); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if f.Status != model.FileStatusPending {
		t.Errorf("initial status = %s", f.Status)
	}

	// pending 不能直接完成
	if err := repo.MarkCompleted(ctx, f.ID, 3); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkCompleted() from pending error = %v", err)
	}
	if err := repo.MarkProcessing(ctx, f.ID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := repo.MarkCompleted(ctx, f.ID, 3); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	// 终态不可变
	if err := repo.MarkFailed(ctx, f.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkFailed() after completed error = %v", err)
	}

	got, err := repo.GetByID(ctx, "owner-1", f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.FileStatusCompleted || got.ChunkCount != 3 || got.ProcessedAt == nil {
		t.Errorf("GetByID() = %+v", got)
	}
}

func TestFileRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(testutil.NewTestDB(t))

	f := &model.UploadedFile{ID: uuid.New().String(), OwnerID: "owner-1"}
	if err := repo.Create(ctx, f); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkProcessing(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkFailed(ctx, f.ID, "embedding backend unreachable"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, "owner-1", f.ID)
	if got.Status != model.FileStatusFailed || got.ErrorMessage != "embedding backend unreachable" {
		t.Errorf("GetByID() = %+v", got)
	}
}

func TestFileRepository_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(testutil.NewTestDB(t))

	for _, owner := range []string{"a", "a", "b"} {
		if err := repo.Create(ctx, &model.UploadedFile{ID: uuid.New().String(), OwnerID: owner}); err != nil {
			t.Fatal(err)
		}
	}
	files, err := repo.ListByOwner(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("ListByOwner(a) len = %d, want 2", len(files))
	}
	if _, err := repo.GetByID(ctx, "b", files[0].ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("GetByID() foreign owner error = %v", err)
	}
	if err := repo.Delete(ctx, "b", files[0].ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Delete() foreign owner error = %v", err)
	}
	if err := repo.Delete(ctx, "a", files[0].ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}
