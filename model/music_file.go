package model

import "time"

// MusicFile 用户上传的一首音频及其元数据
type MusicFile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	Year            int       `json:"year,omitempty"`
	Duration        float64   `json:"duration"` // 秒
	CoverArt        string    `json:"coverArt,omitempty"`
	FileSize        int64     `json:"fileSize"`
	FileType        string    `json:"fileType"`
	UploadedAt      time.Time `json:"uploadedAt"`
	StorageLocation string    `json:"storageLocation"`
}

// MusicFilter 按字段精确过滤，零值字段不参与过滤
type MusicFilter struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// IsEmpty reports whether no filter field is set.
func (f MusicFilter) IsEmpty() bool {
	return f == MusicFilter{}
}

// MetadataPatch 元数据编辑请求。
// 只包含可编辑字段，id/userId/storageLocation/uploadedAt/fileSize/fileType/url
// 在解码时即被丢弃。
type MetadataPatch struct {
	Title    *string  `json:"title,omitempty"`
	Artist   *string  `json:"artist,omitempty"`
	Album    *string  `json:"album,omitempty"`
	Genre    *string  `json:"genre,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	CoverArt *string  `json:"coverArt,omitempty"`
}

// Apply copies the set fields onto f.
func (p MetadataPatch) Apply(f *MusicFile) {
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Artist != nil {
		f.Artist = *p.Artist
	}
	if p.Album != nil {
		f.Album = *p.Album
	}
	if p.Genre != nil {
		f.Genre = *p.Genre
	}
	if p.Year != nil {
		f.Year = *p.Year
	}
	if p.Duration != nil {
		f.Duration = *p.Duration
	}
	if p.CoverArt != nil {
		f.CoverArt = *p.CoverArt
	}
}

// UniqueValueFields 可以做去重取值的字段
var UniqueValueFields = map[string]bool{
	"title":  true,
	"artist": true,
	"album":  true,
	"genre":  true,
}
