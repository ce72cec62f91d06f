package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	Bucket       string           `json:"bucket"`
	TotalObjects int64            `json:"totalObjects"`
	TotalSize    int64            `json:"totalSize"`
	LastModified time.Time        `json:"lastModified"`
	ByKind       map[string]int64 `json:"byKind"` // audio/image/other -> 文件数
}

// List 列出前缀下的对象并统计
func (m *MinioStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, *BucketStats, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, nil, err
	}

	stats := &BucketStats{Bucket: m.bucketName, ByKind: make(map[string]int64)}
	var objects []ObjectInfo

	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		info := toObjectInfo(object)
		objects = append(objects, info)
		stats.add(info)
	}

	return objects, stats, nil
}

// Stats 统计整个存储桶
func (m *MinioStore) Stats(ctx context.Context) (*BucketStats, error) {
	_, stats, err := m.List(ctx, "", true)
	return stats, err
}

// RemovePrefix 递归删除前缀下的全部对象，返回删除数量
func (m *MinioStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("删除操作需要指定目录前缀")
	}
	if err := m.ensureBucket(ctx); err != nil {
		return 0, err
	}

	var toDelete []minio.ObjectInfo
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return 0, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		toDelete = append(toDelete, object)
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	removeCh := make(chan minio.ObjectInfo, len(toDelete))
	for _, obj := range toDelete {
		removeCh <- obj
	}
	close(removeCh)

	for rerr := range m.client.RemoveObjects(ctx, m.bucketName, removeCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return 0, fmt.Errorf("删除对象 %s 失败: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return len(toDelete), nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶是否存在失败: %w", err)
	}
	if !exists {
		return fmt.Errorf("存储桶 %s 不存在", m.bucketName)
	}
	return nil
}

func (s *BucketStats) add(info ObjectInfo) {
	s.TotalObjects++
	s.TotalSize += info.Size
	if info.LastModified.After(s.LastModified) {
		s.LastModified = info.LastModified
	}
	s.ByKind[KindOf(info.Key)]++
}

// KindOf 从文件名推断对象类别
func KindOf(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".opus", ".webm":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	default:
		return "other"
	}
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

// PrintStats 打印统计信息
func PrintStats(w io.Writer, stats *BucketStats) {
	fmt.Fprintf(w, "\n=== 存储桶统计信息 ===\n")
	fmt.Fprintf(w, "存储桶名称: %s\n", stats.Bucket)
	fmt.Fprintf(w, "总大小: %s\n", FormatSize(stats.TotalSize))
	fmt.Fprintf(w, "对象总数: %d\n", stats.TotalObjects)
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "最后修改时间: %s\n", stats.LastModified.Format(time.RFC3339))
	}

	kinds := make([]string, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "\n文件类型统计:\n")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s: %d 个文件\n", k, stats.ByKind[k])
	}
}

// PrintList 平铺打印对象列表
func PrintList(w io.Writer, objects []ObjectInfo) {
	for _, obj := range objects {
		fmt.Fprintf(w, "%s  %10s  %s\n",
			obj.LastModified.Format("2006-01-02 15:04:05"), FormatSize(obj.Size), obj.Key)
	}
}

// PrintTree 按目录结构打印对象，例如 music/<uid>/<artist>/<album>/
func PrintTree(w io.Writer, objects []ObjectInfo) {
	byDir := make(map[string][]ObjectInfo)
	for _, obj := range objects {
		dir := path.Dir(obj.Key)
		byDir[dir] = append(byDir[dir], obj)
		// 补齐中间目录，保证空目录层级也能打印出来
		for d := path.Dir(dir); d != "." && d != "/"; d = path.Dir(d) {
			if _, ok := byDir[d]; !ok {
				byDir[d] = nil
			}
		}
	}

	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		if dir == "." {
			for _, obj := range byDir[dir] {
				fmt.Fprintf(w, "📄 %s (%s)\n", obj.Key, FormatSize(obj.Size))
			}
			continue
		}
		indent := strings.Repeat("  ", strings.Count(dir, "/"))
		fmt.Fprintf(w, "%s📁 %s/\n", indent, dir)
		for _, obj := range byDir[dir] {
			fmt.Fprintf(w, "%s  📄 %s (%s)\n", indent, path.Base(obj.Key), FormatSize(obj.Size))
		}
	}
}
