package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Tunevault/logger"
	"Tunevault/model"

	"github.com/fsnotify/fsnotify"
)

// Uploader 导入使用的上传操作，由 Service 实现
type Uploader interface {
	Upload(ctx context.Context, userID string, in UploadInput) (*model.MusicFile, error)
}

// ImportResult 一次批量导入的统计
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// Importer 把本地目录中的音频文件导入到用户曲库
type Importer struct {
	up       Uploader
	userID   string
	progress ProgressFunc

	// settle 文件在这段时间内没有新的写入事件才认为写完
	settle time.Duration
	// retryBusy 上传槽位已满时的重试间隔
	retryBusy time.Duration

	mu   sync.Mutex
	done map[string]bool
}

// NewImporter creates an importer for one user. progress may be nil.
func NewImporter(up Uploader, userID string, progress ProgressFunc) *Importer {
	return &Importer{
		up:        up,
		userID:    userID,
		progress:  progress,
		settle:    time.Second,
		retryBusy: 2 * time.Second,
		done:      make(map[string]bool),
	}
}

// ImportDir 递归导入目录下的全部音频文件，单个文件失败不会中断
func (im *Importer) ImportDir(ctx context.Context, dir string) (ImportResult, error) {
	var res ImportResult
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		switch err := im.ImportFile(ctx, p); {
		case err == nil:
			res.Imported++
		case errors.Is(err, ErrUnsupportedType), errors.Is(err, errAlreadyImported):
			res.Skipped++
		default:
			res.Failed++
			logger.Warn("[Import] 导入文件失败", logger.String("path", p), logger.ErrorField(err))
		}
		return nil
	})
	return res, err
}

var errAlreadyImported = errors.New("already imported")

// ImportFile 导入单个文件；同一个 Importer 不会重复导入同一路径
func (im *Importer) ImportFile(ctx context.Context, p string) error {
	ct, err := ResolveContentType(p, "")
	if err != nil {
		return err
	}

	im.mu.Lock()
	if im.done[p] {
		im.mu.Unlock()
		return errAlreadyImported
	}
	im.mu.Unlock()

	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}

	in := UploadInput{
		Filename:    filepath.Base(p),
		ContentType: ct,
		Size:        info.Size(),
		Body:        f,
		Progress:    im.progress,
	}

	for {
		music, err := im.up.Upload(ctx, im.userID, in)
		if errors.Is(err, ErrBusy) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(im.retryBusy):
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		im.mu.Lock()
		im.done[p] = true
		im.mu.Unlock()
		logger.Info("[Import] 导入完成",
			logger.String("path", p),
			logger.String("musicId", music.ID),
			logger.String("title", music.Title))
		return nil
	}
}

// Watch 监听目录，新出现且写入完成的音频文件会被导入，直到 ctx 结束
func (im *Importer) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	// fsnotify 不递归，逐个添加子目录
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	// 文件稳定性检查的延迟队列
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(im.settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("[Import] 监听子目录失败", logger.String("dir", event.Name), logger.ErrorField(err))
					}
				}
				continue
			}
			pending[event.Name] = time.Now()

		case <-ticker.C:
			now := time.Now()
			for p, last := range pending {
				if now.Sub(last) < im.settle {
					continue // 文件可能还在写入
				}
				delete(pending, p)
				if err := im.ImportFile(ctx, p); err != nil &&
					!errors.Is(err, ErrUnsupportedType) && !errors.Is(err, errAlreadyImported) {
					logger.Warn("[Import] 导入文件失败", logger.String("path", p), logger.ErrorField(err))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Import] 文件监听错误", logger.ErrorField(err))
		}
	}
}
