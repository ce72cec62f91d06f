// Package library implements the per-user music library: uploads with
// metadata extraction, listing, filtering, metadata edits, deletion and
// search over the index with a substring fallback.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"Tunevault/config"
	"Tunevault/core/metadata"
	"Tunevault/logger"
	"Tunevault/model"
	"Tunevault/repository"
	"Tunevault/storage"

	"github.com/google/uuid"
)

// Indexer 曲库使用的索引操作
type Indexer interface {
	IndexMusicFile(ctx context.Context, f *model.MusicFile) error
	DeleteEntriesForMusic(ctx context.Context, userID, musicID string) error
	Search(ctx context.Context, userID, term string) ([]string, error)
}

// Cache 每用户曲库列表缓存
type Cache interface {
	Get(ctx context.Context, userID string) ([]*model.MusicFile, bool, error)
	Set(ctx context.Context, userID string, files []*model.MusicFile) error
	Invalidate(ctx context.Context, userID string) error
}

// DurationProber 探测音频时长
type DurationProber interface {
	Duration(ctx context.Context, r io.Reader) (float64, error)
}

// Options 上传限制
type Options struct {
	MaxBytes      int64
	MaxConcurrent int
	Timeout       time.Duration
}

// DefaultOptions 返回默认的上传配置
func DefaultOptions() Options {
	return Options{
		MaxBytes:      100 << 20, // 100MB
		MaxConcurrent: 5,
		Timeout:       5 * time.Minute,
	}
}

// OptionsFromConfig maps the upload section of cfg, keeping defaults for unset values.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.UploadMaxBytes > 0 {
		opts.MaxBytes = cfg.UploadMaxBytes
	}
	if cfg.UploadMaxConcurrent > 0 {
		opts.MaxConcurrent = cfg.UploadMaxConcurrent
	}
	if cfg.UploadTimeout > 0 {
		opts.Timeout = cfg.UploadTimeout
	}
	return opts
}

// 浏览器经常给出 application/octet-stream，按扩展名补全
var audioTypesByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".weba": "audio/webm",
}

// UploadInput 一次上传的文件和客户端提供的元数据
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
	// Overrides 优先于从标签读出的元数据
	Overrides model.MetadataPatch
	Progress  ProgressFunc
}

// SearchResult 搜索结果，Fallback 表示索引不可用时使用了子串匹配
type SearchResult struct {
	Files    []*model.MusicFile `json:"files"`
	Fallback bool               `json:"fallback"`
}

// Service 曲库服务
type Service struct {
	repo   repository.MusicRepository
	index  Indexer
	store  storage.ObjectStore
	cache  Cache
	prober DurationProber
	opts   Options
	sem    chan struct{}
	now    func() time.Time
	newID  func() string
}

// NewService creates a library service. cache and prober may be nil.
func NewService(repo repository.MusicRepository, index Indexer, store storage.ObjectStore, cache Cache, prober DurationProber, opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultOptions().MaxConcurrent
	}
	return &Service{
		repo:   repo,
		index:  index,
		store:  store,
		cache:  cache,
		prober: prober,
		opts:   opts,
		sem:    make(chan struct{}, opts.MaxConcurrent),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Options returns the upload limits in effect.
func (s *Service) Options() Options {
	return s.opts
}

// ResolveContentType 返回可接受的音频类型，不是音频时返回 ErrUnsupportedType
func ResolveContentType(filename, contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "audio/") {
		return ct, nil
	}
	if ct == "" || ct == "application/octet-stream" || ct == "video/mp4" || ct == "video/ogg" || ct == "video/webm" {
		ext := strings.ToLower(filepath.Ext(filename))
		if t, ok := audioTypesByExt[ext]; ok {
			return t, nil
		}
		if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
			return strings.SplitN(t, ";", 2)[0], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
}

// Upload 上传一首音频：写对象，再写记录，最后建立索引（索引失败只记录日志）
func (s *Service) Upload(ctx context.Context, userID string, in UploadInput) (*model.MusicFile, error) {
	if in.Size <= 0 {
		return nil, ErrEmptyFile
	}
	if s.opts.MaxBytes > 0 && in.Size > s.opts.MaxBytes {
		return nil, fmt.Errorf("%w: maximum size is %d MB", ErrFileTooLarge, s.opts.MaxBytes>>20)
	}
	contentType, err := ResolveContentType(in.Filename, in.ContentType)
	if err != nil {
		return nil, err
	}

	// 获取信号量，控制并发
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		logger.Warn("[Library] 服务器繁忙，拒绝新的上传请求", logger.String("userId", userID))
		return nil, ErrBusy
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := s.now()
	md := metadata.Extract(in.Body, in.Filename)
	duration := s.probeDuration(ctx, in)

	file := &model.MusicFile{
		ID:         s.newID(),
		UserID:     userID,
		Title:      md.Title,
		Artist:     md.Artist,
		Album:      md.Album,
		Genre:      md.Genre,
		Year:       md.Year,
		Duration:   duration,
		FileSize:   in.Size,
		FileType:   contentType,
		UploadedAt: start.UTC(),
	}
	in.Overrides.Apply(file)
	file.Title = strings.TrimSpace(file.Title)
	if file.Title == "" {
		file.Title = metadata.TitleFromFilename(in.Filename)
	}
	if strings.TrimSpace(file.Artist) == "" {
		file.Artist = DefaultArtist
	}
	if strings.TrimSpace(file.Album) == "" {
		file.Album = DefaultAlbum
	}

	file.StorageLocation = StoragePath(userID, file.Artist, file.Album, in.Filename)
	file.URL = s.store.URL(file.StorageLocation)

	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}
	body := newProgressReader(in.Body, in.Size, file.StorageLocation, in.Progress)
	if err := s.store.Put(ctx, file.StorageLocation, body, in.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store audio object: %w", err)
	}

	if in.Overrides.CoverArt == nil && md.Picture != nil {
		file.CoverArt = s.storeCover(ctx, file, md.Picture)
	}

	if err := s.repo.Create(ctx, file); err != nil {
		if rmErr := s.store.Remove(context.Background(), file.StorageLocation); rmErr != nil {
			logger.Warn("[Library] 回滚音频对象失败",
				logger.String("key", file.StorageLocation), logger.ErrorField(rmErr))
		}
		return nil, fmt.Errorf("failed to save music record: %w", err)
	}

	if err := s.index.IndexMusicFile(ctx, file); err != nil {
		logger.Error("[Library] 建立索引失败", logger.String("musicId", file.ID), logger.ErrorField(err))
	}
	s.invalidate(ctx, userID)

	logger.Info("[Library] 上传完成",
		logger.String("userId", userID),
		logger.String("musicId", file.ID),
		logger.String("key", file.StorageLocation),
		logger.Int64("size", in.Size),
		logger.Duration("elapsed", s.now().Sub(start)))
	return file, nil
}

func (s *Service) probeDuration(ctx context.Context, in UploadInput) float64 {
	if in.Overrides.Duration != nil || s.prober == nil {
		return 0
	}
	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	d, err := s.prober.Duration(ctx, in.Body)
	if err != nil {
		logger.Warn("[Library] 获取音频时长失败", logger.String("filename", in.Filename), logger.ErrorField(err))
		return 0
	}
	return d
}

// storeCover 保存内嵌封面，失败时返回空字符串
func (s *Service) storeCover(ctx context.Context, f *model.MusicFile, pic *metadata.Picture) string {
	key := CoverPath(f.UserID, f.ID, pic.Ext)
	contentType := pic.MIMEType
	if contentType == "" {
		contentType = "image/" + strings.TrimPrefix(filepath.Ext(key), ".")
	}
	if err := s.store.Put(ctx, key, bytes.NewReader(pic.Data), int64(len(pic.Data)), contentType); err != nil {
		logger.Warn("[Library] 保存封面失败", logger.String("key", key), logger.ErrorField(err))
		return ""
	}
	return s.store.URL(key)
}

// List 返回用户的全部音乐，优先读缓存
func (s *Service) List(ctx context.Context, userID string) ([]*model.MusicFile, error) {
	if s.cache != nil {
		files, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			logger.Warn("[Library] 读取曲库缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		} else if ok {
			return files, nil
		}
	}

	files, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list music files: %w", err)
	}
	if files == nil {
		files = []*model.MusicFile{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, files); err != nil {
			logger.Warn("[Library] 写入曲库缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		}
	}
	return files, nil
}

// Filter 字段精确匹配，空过滤条件等同 List
func (s *Service) Filter(ctx context.Context, userID string, filter model.MusicFilter) ([]*model.MusicFile, error) {
	if filter.IsEmpty() {
		return s.List(ctx, userID)
	}
	files, err := s.repo.Filter(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to filter music files: %w", err)
	}
	if files == nil {
		files = []*model.MusicFile{}
	}
	return files, nil
}

// Get 读取一首音乐，只有所有者可见
func (s *Service) Get(ctx context.Context, userID, id string) (*model.MusicFile, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get music file: %w", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}
	if f.UserID != userID {
		return nil, ErrForbidden
	}
	return f, nil
}

// UpdateMetadata 修改可编辑字段并重建索引
func (s *Service) UpdateMetadata(ctx context.Context, userID, id string, patch model.MetadataPatch) (*model.MusicFile, error) {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(f)
	if err := s.repo.Update(ctx, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update music file: %w", err)
	}

	if err := s.index.IndexMusicFile(ctx, f); err != nil {
		logger.Error("[Library] 更新索引失败", logger.String("musicId", f.ID), logger.ErrorField(err))
	}
	s.invalidate(ctx, userID)
	return f, nil
}

// Delete 依次删除对象、索引和记录
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, f.StorageLocation); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete audio object: %w", err)
	}
	if key, ok := s.store.KeyOf(f.CoverArt); ok && IsOwnedCover(userID, key) {
		if err := s.store.Remove(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Warn("[Library] 删除封面失败", logger.String("key", key), logger.ErrorField(err))
		}
	}

	if err := s.index.DeleteEntriesForMusic(ctx, userID, id); err != nil {
		logger.Error("[Library] 删除索引失败", logger.String("musicId", id), logger.ErrorField(err))
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete music record: %w", err)
	}
	s.invalidate(ctx, userID)

	logger.Info("[Library] 已删除音乐", logger.String("userId", userID), logger.String("musicId", id))
	return nil
}

// UniqueValues 某个字段的去重非空取值
func (s *Service) UniqueValues(ctx context.Context, userID, field string) ([]string, error) {
	if !model.UniqueValueFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	values, err := s.repo.DistinctValues(ctx, userID, field)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique values: %w", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// Search 走索引搜索；索引出错时退化为标题/艺术家/专辑的子串匹配
func (s *Service) Search(ctx context.Context, userID, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		files, err := s.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &SearchResult{Files: files}, nil
	}

	ids, err := s.index.Search(ctx, userID, query)
	if err != nil {
		logger.Warn("[Library] 索引搜索失败，使用子串匹配", logger.String("userId", userID), logger.ErrorField(err))
		files, listErr := s.List(ctx, userID)
		if listErr != nil {
			return nil, listErr
		}
		return &SearchResult{Files: MatchSubstring(files, query), Fallback: true}, nil
	}

	files, err := s.resolve(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Files: files}, nil
}

// resolve 按 ids 顺序取回记录，跳过不存在或不属于该用户的
func (s *Service) resolve(ctx context.Context, userID string, ids []string) ([]*model.MusicFile, error) {
	result := []*model.MusicFile{}
	if len(ids) == 0 {
		return result, nil
	}
	found, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load search results: %w", err)
	}
	byID := make(map[string]*model.MusicFile, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}
	for _, id := range ids {
		if f, ok := byID[id]; ok && f.UserID == userID {
			result = append(result, f)
		}
	}
	return result, nil
}

// MatchSubstring 不区分大小写地匹配标题、艺术家、专辑
func MatchSubstring(files []*model.MusicFile, query string) []*model.MusicFile {
	q := strings.ToLower(strings.TrimSpace(query))
	matched := []*model.MusicFile{}
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Title), q) ||
			strings.Contains(strings.ToLower(f.Artist), q) ||
			strings.Contains(strings.ToLower(f.Album), q) {
			matched = append(matched, f)
		}
	}
	return matched
}

// Resolve 把 ID 列表解析为用户的音乐，保持顺序并跳过缺失项
func (s *Service) Resolve(ctx context.Context, userID string, ids []string) ([]*model.MusicFile, error) {
	return s.resolve(ctx, userID, ids)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		logger.Warn("[Library] 清除曲库缓存失败", logger.String("userId", userID), logger.ErrorField(err))
	}
}
