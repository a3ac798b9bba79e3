package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sunobot/config"
	"sunobot/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo 归档中的文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ArchiveStats 归档统计
type ArchiveStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Archive 把交付的歌曲镜像到 MinIO，对象键为 history/<userId>/<文件名>
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive 创建 MinIO 客户端，存储桶不存在时创建
func NewArchive(ctx context.Context, cfg *config.Config) (*Archive, error) {
	logger.Info("connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &Archive{client: client, bucket: cfg.MinioBucket}, nil
}

// ObjectKey 本地文件对应的对象键
func ObjectKey(userID int64, path string) string {
	return UserPrefix(userID) + filepath.Base(path)
}

// UserPrefix 用户在归档中的目录
func UserPrefix(userID int64) string {
	return "history/" + strconv.FormatInt(userID, 10) + "/"
}

// Put 上传本地文件
func (a *Archive) Put(ctx context.Context, userID int64, path string) error {
	key := ObjectKey(userID, path)
	info, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	logger.Debug("archived song", logger.String("key", key), logger.Int64("size", info.Size))
	return nil
}

// Remove 删除对象，不存在时不报错
func (a *Archive) Remove(ctx context.Context, userID int64, path string) error {
	key := ObjectKey(userID, path)
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// List 列出前缀下的对象和统计
func (a *Archive) List(ctx context.Context, prefix string) ([]ObjectInfo, *ArchiveStats, error) {
	var objects []ObjectInfo
	stats := &ArchiveStats{}

	for object := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return objects, stats, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// ContentType 从扩展名推断
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
