package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"Tunevault/core/library"
	"Tunevault/logger"
	"Tunevault/model"
	"Tunevault/repository"
	"Tunevault/storage"

	"github.com/google/uuid"
)

const coversPrefix = "playlist_covers"

var (
	ErrNotFound         = errors.New("playlist not found")
	ErrForbidden        = errors.New("you do not have permission to access this playlist")
	ErrInvalidOrder     = errors.New("the new order must contain all songs currently in the playlist")
	ErrInvalidName      = errors.New("playlist name is required")
	ErrUnsupportedImage = errors.New("cover must be an image")
	ErrImageTooLarge    = errors.New("cover image is too large")
	ErrForeignCover     = errors.New("cover image must be one of your uploaded playlist covers")
)

// MusicLookup 解析歌单里的歌曲ID
type MusicLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]*model.MusicFile, error)
}

// Service 歌单服务
type Service struct {
	repo          repository.PlaylistRepository
	music         MusicLookup
	store         storage.ObjectStore
	coverMaxBytes int64
	now           func() time.Time
	newID         func() string
}

// NewService 创建歌单服务，coverMaxBytes <= 0 表示不限制封面大小
func NewService(repo repository.PlaylistRepository, music MusicLookup, store storage.ObjectStore, coverMaxBytes int64) *Service {
	return &Service{
		repo:          repo,
		music:         music,
		store:         store,
		coverMaxBytes: coverMaxBytes,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Create 创建歌单
func (s *Service) Create(ctx context.Context, userID string, in model.PlaylistInput) (*model.Playlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := s.checkCover(userID, in.CoverImage); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	songIDs := model.SongIDList(in.SongIDs)
	if songIDs == nil {
		songIDs = model.SongIDList{}
	}

	p := &model.Playlist{
		ID:          s.newID(),
		UserID:      userID,
		Name:        name,
		Description: in.Description,
		CoverImage:  in.CoverImage,
		SongIDs:     songIDs,
		IsPublic:    in.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("error creating playlist: %w", err)
	}
	logger.Info("[Playlist] 创建歌单", logger.String("userId", userID), logger.String("playlistId", p.ID))
	return p, nil
}

// ListForUser 用户自己的歌单，按更新时间倒序
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Playlist, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving playlists: %w", err)
	}
	if list == nil {
		list = []*model.Playlist{}
	}
	return list, nil
}

// ListPublic 所有公开歌单，按更新时间倒序
func (s *Service) ListPublic(ctx context.Context) ([]*model.Playlist, error) {
	list, err := s.repo.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving public playlists: %w", err)
	}
	if list == nil {
		list = []*model.Playlist{}
	}
	return list, nil
}

// Get 读取歌单；私有歌单只有所有者可读
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Playlist, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving playlist: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if !p.IsPublic && p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

// owned 读取歌单并要求是所有者
func (s *Service) owned(ctx context.Context, userID, id string) (*model.Playlist, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving playlist: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, p *model.Playlist) error {
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("error updating playlist: %w", err)
	}
	return nil
}

// Update 修改歌单信息
func (s *Service) Update(ctx context.Context, userID, id string, patch model.PlaylistPatch) (*model.Playlist, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	oldCover := p.CoverImage
	if patch.CoverImage != nil {
		if err := s.checkCover(userID, *patch.CoverImage); err != nil {
			return nil, err
		}
		p.CoverImage = *patch.CoverImage
	}
	if patch.IsPublic != nil {
		p.IsPublic = *patch.IsPublic
	}
	if patch.SongIDs != nil {
		p.SongIDs = model.SongIDList(patch.SongIDs)
	}

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	if oldCover != "" && oldCover != p.CoverImage {
		s.removeCover(ctx, userID, oldCover)
	}
	return p, nil
}

// ownCoverKey 返回属于该用户歌单封面目录的对象key
func (s *Service) ownCoverKey(userID, coverURL string) (string, bool) {
	key, ok := s.store.KeyOf(coverURL)
	if !ok || path.Clean(key) != key {
		return "", false
	}
	return key, strings.HasPrefix(key, coversPrefix+"/"+userID+"/")
}

// checkCover 外部图片地址可以直接使用；指向本服务对象存储的只能是自己上传的歌单封面
func (s *Service) checkCover(userID, coverURL string) error {
	if coverURL == "" {
		return nil
	}
	if _, stored := s.store.KeyOf(coverURL); !stored {
		return nil
	}
	if _, owned := s.ownCoverKey(userID, coverURL); !owned {
		return ErrForeignCover
	}
	return nil
}

// removeCover 删除用户自己的封面对象，其他地址不处理
func (s *Service) removeCover(ctx context.Context, userID, coverURL string) {
	key, owned := s.ownCoverKey(userID, coverURL)
	if !owned {
		return
	}
	if err := s.store.Remove(ctx, key); err != nil {
		logger.Warn("[Playlist] 删除歌单封面失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// Delete 删除歌单，封面删除失败不影响结果
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting playlist: %w", err)
	}
	if p.CoverImage != "" {
		s.removeCover(ctx, userID, p.CoverImage)
	}
	logger.Info("[Playlist] 删除歌单", logger.String("userId", userID), logger.String("playlistId", id))
	return nil
}

// CoverPath 歌单封面的对象路径
func CoverPath(userID, playlistID, filename string, at time.Time) string {
	if playlistID == "" {
		playlistID = "new"
	}
	return fmt.Sprintf("%s/%s/%s/%d_%s", coversPrefix, userID, playlistID, at.UnixMilli(), library.SanitizeFilename(filename))
}

// UploadCover 上传封面图片并返回访问地址。playlistID 为空时表示尚未创建的歌单。
func (s *Service) UploadCover(ctx context.Context, userID, playlistID, filename, contentType string, r io.Reader, size int64) (string, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, contentType)
	}
	if s.coverMaxBytes > 0 && size > s.coverMaxBytes {
		return "", ErrImageTooLarge
	}
	if playlistID != "" {
		if _, err := s.owned(ctx, userID, playlistID); err != nil {
			return "", err
		}
	}

	key := CoverPath(userID, playlistID, filename, s.now())
	if err := s.store.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("error uploading playlist cover image: %w", err)
	}
	return s.store.URL(key), nil
}

// AddSong 添加歌曲；已在歌单中时原样返回，不更新时间
func (s *Service) AddSong(ctx context.Context, userID, id, songID string) (*model.Playlist, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.SongIDs.Contains(songID) {
		return p, nil
	}
	p.SongIDs = append(p.SongIDs, songID)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveSong 删除歌曲的所有出现
func (s *Service) RemoveSong(ctx context.Context, userID, id, songID string) (*model.Playlist, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	kept := model.SongIDList{}
	for _, sid := range p.SongIDs {
		if sid != songID {
			kept = append(kept, sid)
		}
	}
	p.SongIDs = kept
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidOrder reports whether newOrder holds exactly the distinct ids of current.
func ValidOrder(current, newOrder []string) bool {
	cur := make(map[string]bool, len(current))
	for _, id := range current {
		cur[id] = true
	}
	next := make(map[string]bool, len(newOrder))
	for _, id := range newOrder {
		next[id] = true
	}
	if len(cur) != len(next) {
		return false
	}
	for id := range cur {
		if !next[id] {
			return false
		}
	}
	return true
}

// Reorder 按新顺序保存歌曲，集合必须与当前一致
func (s *Service) Reorder(ctx context.Context, userID, id string, newOrder []string) (*model.Playlist, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !ValidOrder(p.SongIDs, newOrder) {
		return nil, ErrInvalidOrder
	}
	p.SongIDs = append(model.SongIDList{}, newOrder...)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Songs 按歌单顺序返回歌曲，跳过已被删除的
func (s *Service) Songs(ctx context.Context, userID, id string) ([]*model.MusicFile, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	songs := []*model.MusicFile{}
	if len(p.SongIDs) == 0 {
		return songs, nil
	}

	found, err := s.music.GetByIDs(ctx, p.SongIDs)
	if err != nil {
		return nil, fmt.Errorf("error retrieving playlist songs: %w", err)
	}
	byID := make(map[string]*model.MusicFile, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}
	for _, sid := range p.SongIDs {
		if f, ok := byID[sid]; ok {
			songs = append(songs, f)
		}
	}
	return songs, nil
}
