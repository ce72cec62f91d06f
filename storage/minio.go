package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"Tunevault/config"
	"Tunevault/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// MediaPathPrefix 对外暴露对象的 URL 前缀，由 server 的 /media/ 路由代理
const MediaPathPrefix = "/media/"

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType"`
	ETag         string    `json:"etag"`
}

// Object 一个可随机读取的对象，用于支持 Range 请求
type Object struct {
	io.ReadSeekCloser
	Info ObjectInfo
}

// ObjectStore 对象存储的最小接口
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
	// KeyOf 把 URL 还原为对象键，不是本存储生成的地址返回 false
	KeyOf(rawURL string) (string, bool)
}

// MinioStore 基于 MinIO 的 ObjectStore 实现，同时提供管理命令使用的方法
type MinioStore struct {
	client     *minio.Client
	bucketName string
	publicBase string
}

var _ ObjectStore = (*MinioStore)(nil)

// InitMinio 创建 MinIO 客户端并确保存储桶存在
func InitMinio(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	logger.Info("正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("region", cfg.MinioRegion),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion})
		if err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO 客户端初始化成功")
	return &MinioStore{
		client:     client,
		bucketName: cfg.MinioBucket,
		publicBase: cfg.PublicBaseURL,
	}, nil
}

// Bucket 返回存储桶名称
func (m *MinioStore) Bucket() string {
	return m.bucketName
}

// Put 上传对象，size 未知时传 -1
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// Get 打开对象用于读取，调用方负责 Close
func (m *MinioStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(key, err)
	}
	// GetObject 是惰性的，Stat 时才会真正发请求
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, translateError(key, err)
	}
	return &Object{ReadSeekCloser: obj, Info: toObjectInfo(info)}, nil
}

// Stat 获取对象信息
func (m *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateError(key, err)
	}
	return toObjectInfo(info), nil
}

// Remove 删除对象，对象不存在时不报错
func (m *MinioStore) Remove(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return translateError(key, err)
	}
	return nil
}

// URL 返回对象的访问地址
func (m *MinioStore) URL(key string) string {
	return ObjectURL(m.publicBase, key)
}

// KeyOf 见 KeyFromURL
func (m *MinioStore) KeyOf(rawURL string) (string, bool) {
	return KeyFromURL(m.publicBase, rawURL)
}

// ObjectURL 拼出 /media/ 路由下的对象地址，每一段做 path escape
func ObjectURL(publicBase, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(publicBase, "/") + MediaPathPrefix + strings.Join(parts, "/")
}

// KeyFromURL 是 ObjectURL 的逆操作，不是本服务生成的地址返回 false
func KeyFromURL(publicBase, rawURL string) (string, bool) {
	prefix := strings.TrimRight(publicBase, "/") + MediaPathPrefix
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
	}
}

func translateError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return fmt.Errorf("对象 %s 操作失败: %w", key, err)
}
