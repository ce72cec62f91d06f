package repository

import (
	"context"
	"fmt"

	"Tunevault/model"

	"gorm.io/gorm"
)

// PlaylistRepository 歌单数据访问接口
type PlaylistRepository interface {
	Create(ctx context.Context, p *model.Playlist) error
	GetByID(ctx context.Context, id string) (*model.Playlist, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Playlist, error)
	ListPublic(ctx context.Context) ([]*model.Playlist, error)
	Save(ctx context.Context, p *model.Playlist) error
	Delete(ctx context.Context, id string) error
}

// gormPlaylistRepository GORM 实现
type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository 创建 GORM 歌单仓库
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// Create 创建歌单
func (r *gormPlaylistRepository) Create(ctx context.Context, p *model.Playlist) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

// GetByID 根据ID获取歌单，不存在返回 nil, nil
func (r *gormPlaylistRepository) GetByID(ctx context.Context, id string) (*model.Playlist, error) {
	var p model.Playlist
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}
	return &p, nil
}

// ListByUser 用户的歌单，最近更新的在前
func (r *gormPlaylistRepository) ListByUser(ctx context.Context, userID string) ([]*model.Playlist, error) {
	var list []*model.Playlist
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return list, nil
}

// ListPublic 所有公开歌单，最近更新的在前
func (r *gormPlaylistRepository) ListPublic(ctx context.Context) ([]*model.Playlist, error) {
	var list []*model.Playlist
	err := r.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("updated_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public playlists: %w", err)
	}
	return list, nil
}

// Save 保存整个歌单。UpdatedAt 由调用方维护，这里不让 GORM 自动覆盖。
func (r *gormPlaylistRepository) Save(ctx context.Context, p *model.Playlist) error {
	err := r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("id = ?", p.ID).
		UpdateColumns(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"cover_image": p.CoverImage,
			"song_ids":    p.SongIDs,
			"is_public":   p.IsPublic,
			"updated_at":  p.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save playlist %s: %w", p.ID, err)
	}
	return nil
}

// Delete 删除歌单
func (r *gormPlaylistRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Playlist{}).Error; err != nil {
		return fmt.Errorf("failed to delete playlist %s: %w", id, err)
	}
	return nil
}
