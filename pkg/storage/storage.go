// Package storage 保存上传的原始文件，支持本地目录与 MinIO 两种后端。
//
// 每个文档独占一个以文档 ID 命名的目录（或对象前缀），原始文件保存为
// {id}/orig{ext}，没有扩展名时使用 .bin。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// BlobStore 定义了原始文件的保存与清理。
type BlobStore interface {
	// Save 写入文档的原始文件并返回其位置（本地路径或 minio:// URI）。
	Save(ctx context.Context, documentID uint, ext string, content []byte) (string, error)
	// RemoveAll 删除文档的整个目录；目录不存在时不报错。
	RemoveAll(ctx context.Context, documentID uint) error
}

// ObjectName 返回文档原始文件在存储中的相对位置。
func ObjectName(documentID uint, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	return strconv.FormatUint(uint64(documentID), 10) + "/orig" + ext
}

type localStore struct {
	root string
}

// NewLocal 创建以 root 为根目录的本地存储。
func NewLocal(root string) BlobStore {
	return &localStore{root: root}
}

func (s *localStore) Save(_ context.Context, documentID uint, ext string, content []byte) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(ObjectName(documentID, ext)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("创建文档目录失败: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("写入原始文件失败: %w", err)
	}
	return path, nil
}

func (s *localStore) RemoveAll(_ context.Context, documentID uint) error {
	dir := filepath.Join(s.root, strconv.FormatUint(uint64(documentID), 10))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("删除文档目录失败: %w", err)
	}
	return nil
}
