// Package file 上传文件的原始字节存储
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/google/uuid"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("stored object not found")

// Storage 文件存储接口
type Storage interface {
	// Save 保存文件，返回存储路径
	Save(ctx context.Context, req *SaveRequest) (string, error)
	// Open 读取文件内容
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	// Delete 删除文件，不存在时不报错
	Delete(ctx context.Context, storagePath string) error
}

// SaveRequest 保存文件请求
type SaveRequest struct {
	OwnerID     string
	FileID      string
	Ext         string // 不含点
	ContentType string
	Size        int64
	Reader      io.Reader
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeMinIO StorageType = "minio"
)

// NewStorage 按配置创建存储
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.BasePath)
	case StorageTypeMinIO:
		if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
			return nil, fmt.Errorf("missing required MinIO config")
		}
		return NewMinIOStorage(ctx, &MinIOConfig{
			Endpoint:   cfg.Endpoint,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			BucketName: cfg.Bucket,
			UseSSL:     cfg.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// objectPath 生成存储路径: {ownerID}/{fileID}.{ext}
func objectPath(req *SaveRequest) string {
	id := req.FileID
	if id == "" {
		id = uuid.New().String()
	}
	name := id
	if ext := strings.TrimPrefix(req.Ext, "."); ext != "" {
		name += "." + strings.ToLower(ext)
	}
	return path.Join(req.OwnerID, name)
}

// cleanPath 拒绝越出存储根目录的路径
func cleanPath(p string) (string, error) {
	cleaned := path.Clean("/" + p)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(p, "/") {
		return "", fmt.Errorf("invalid storage path: %q", p)
	}
	return cleaned, nil
}
