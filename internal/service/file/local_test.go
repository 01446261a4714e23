package file

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ashwinyue/next-tutor/internal/config"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.Save(ctx, &SaveRequest{OwnerID: "owner-1", FileID: "file-1", Ext: ".TXT", Reader: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if p != "owner-1/file-1.txt" {
		t.Errorf("Save() path = %q", p)
	}

	rc, err := s.Open(ctx, p)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, p); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := s.Open(ctx, p); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Open() after delete error = %v", err)
	}
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"../etc/passwd", "a/../../b", ""} {
		if _, err := s.Open(context.Background(), p); err == nil || errors.Is(err, ErrObjectNotFound) {
			t.Errorf("Open(%q) error = %v, want invalid path", p, err)
		}
	}
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStorage(ctx, &config.StorageConfig{Type: "local", BasePath: t.TempDir()}); err != nil {
		t.Errorf("local: %v", err)
	}
	if _, err := NewStorage(ctx, &config.StorageConfig{Type: "minio"}); err == nil {
		t.Error("minio without endpoint should fail")
	}
	if _, err := NewStorage(ctx, &config.StorageConfig{Type: "cos"}); err == nil {
		t.Error("unknown type should fail")
	}
}
