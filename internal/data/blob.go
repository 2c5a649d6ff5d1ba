package data

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioBlobStore 基于 MinIO 的文件存储。
// 会话记录里只存对象名 (opaque handle)，方便以后换存储后端。
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

func NewMinioBlobStore(d *Data) *MinioBlobStore {
	return &MinioBlobStore{client: d.Minio, bucket: d.Bucket}
}

// Put 上传对象。
func (s *MinioBlobStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Get 返回对象读取流和大小。对象不存在时 StatObject 报错。
func (s *MinioBlobStore) Get(ctx context.Context, objectName string) (io.ReadCloser, int64, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	return obj, stat.Size, nil
}

// Remove 删除对象。MinIO 对不存在的对象删除不报错，天然幂等。
func (s *MinioBlobStore) Remove(ctx context.Context, objectName string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
}
