package model

import "time"

// IndexEntry 搜索索引中的一条记录：字段 -> 小写值 -> 音乐ID
type IndexEntry struct {
	UserID    string    `json:"userId"`
	MusicID   string    `json:"musicId"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexedFields 参与索引的字段，顺序即写入顺序
var IndexedFields = []string{"title", "artist", "album", "genre"}

// WordFieldSuffix 单词级索引字段后缀，例如 "title_word"
const WordFieldSuffix = "_word"
