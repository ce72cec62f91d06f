package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SongIDList 有序的歌曲ID列表，以 JSON 形式存入 GORM 字段
type SongIDList []string

// Scan 实现 sql.Scanner 接口
func (s *SongIDList) Scan(value interface{}) error {
	if value == nil {
		*s = SongIDList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported song id list type %T", value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*s = SongIDList{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value 实现 driver.Valuer 接口，nil 存为空数组
func (s SongIDList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether id is in the list.
func (s SongIDList) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Playlist 歌单，歌曲按ID引用，不做外键约束
type Playlist struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      string     `json:"userId" gorm:"size:36;index;not null"`
	Name        string     `json:"name" gorm:"size:255;not null"`
	Description string     `json:"description" gorm:"type:text"`
	CoverImage  string     `json:"coverImage,omitempty" gorm:"size:1024"`
	SongIDs     SongIDList `json:"songIds" gorm:"type:json"`
	IsPublic    bool       `json:"isPublic" gorm:"index;default:false"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"index"`
}

// TableName 指定表名
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistInput 创建歌单的请求
type PlaylistInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CoverImage  string   `json:"coverImage,omitempty"`
	SongIDs     []string `json:"songIds,omitempty"`
	IsPublic    bool     `json:"isPublic,omitempty"`
}

// PlaylistPatch 歌单的部分更新，nil 字段保持不变
type PlaylistPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	CoverImage  *string  `json:"coverImage,omitempty"`
	IsPublic    *bool    `json:"isPublic,omitempty"`
	SongIDs     []string `json:"songIds,omitempty"`
}
