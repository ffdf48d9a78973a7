package storage

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	Key      string // 对象键，例如 2210.03629.pdf
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
	Path     string // 内部存储路径(实现相关)
}

// Storage 按键寻址的文件存储接口
// 用作论文PDF的镜像，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Save 以key保存文件，已存在时覆盖
	Save(key string, reader io.Reader) (FileInfo, error)

	// Get 获取文件内容，不存在时返回ErrNotFound
	Get(key string) (io.ReadCloser, error)

	// Delete 删除文件
	Delete(key string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(key string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string // local 或 minio
	Local LocalConfig
	Minio MinioConfig
}

// New 根据配置创建存储实例
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// validateKey 拒绝可能逃逸存储目录的键
func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) || strings.ContainsAny(key, `\`) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
