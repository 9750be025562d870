package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var _ ObjectStorage = (*LocalStorage)(nil)

// LocalStorage 本地文件系统存储
// 作为兜底通道存在，key 映射为 dir 下的相对路径
type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = "./data/uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败: %w", err)
	}
	return &LocalStorage{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *LocalStorage) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalStorage) Download(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.path(key))
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PresignURL 本地文件直接公开访问，无需签名
func (s *LocalStorage) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.baseURL + "/" + key, nil
}
