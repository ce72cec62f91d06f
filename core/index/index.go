// Package index maintains the per-user search index of music files:
// every indexed field is stored as its lowercase value plus one entry
// per word, and search is a prefix match over those tokens.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Tunevault/logger"
	"Tunevault/model"
	"Tunevault/repository"
)

// ErrMissingID 索引的音乐记录没有 ID
var ErrMissingID = errors.New("music file must have an id to be indexed")

const (
	minTermLength = 2 // 搜索词去空白后的最短长度
	minSearchWord = 2 // 参与搜索的单词最短长度
	minIndexWord  = 3 // 写入单词索引的最短长度
)

// Service 搜索索引服务
type Service struct {
	repo repository.IndexRepository
	now  func() time.Time
}

// NewService creates an index service.
func NewService(repo repository.IndexRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Entries 计算一首歌的全部索引条目
func Entries(f *model.MusicFile, ts time.Time) []model.IndexEntry {
	values := map[string]string{
		"title":  f.Title,
		"artist": f.Artist,
		"album":  f.Album,
		"genre":  f.Genre,
	}

	var entries []model.IndexEntry
	add := func(field, value string) {
		entries = append(entries, model.IndexEntry{
			UserID:    f.UserID,
			MusicID:   f.ID,
			Field:     field,
			Value:     value,
			Timestamp: ts,
		})
	}

	for _, field := range model.IndexedFields {
		value := strings.ToLower(values[field])
		if strings.TrimSpace(value) == "" {
			continue
		}
		add(field, value)
		for _, word := range strings.Fields(value) {
			if len([]rune(word)) >= minIndexWord {
				add(field+model.WordFieldSuffix, word)
			}
		}
	}
	return entries
}

// SearchWords 把搜索词拆成参与匹配的单词，过短的搜索词返回 nil
func SearchWords(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if len([]rune(term)) < minTermLength {
		return nil
	}
	var words []string
	for _, w := range strings.Fields(term) {
		if len([]rune(w)) >= minSearchWord {
			words = append(words, w)
		}
	}
	return words
}

// IndexMusicFile 重建一首歌的索引条目
func (s *Service) IndexMusicFile(ctx context.Context, f *model.MusicFile) error {
	if f.ID == "" {
		return ErrMissingID
	}
	if err := s.repo.DeleteByMusic(ctx, f.UserID, f.ID); err != nil {
		return fmt.Errorf("failed to clear old index entries: %w", err)
	}
	entries := Entries(f, s.now().UTC())
	if err := s.repo.AddEntries(ctx, entries); err != nil {
		return fmt.Errorf("failed to index music file %s: %w", f.ID, err)
	}
	logger.Debug("[Index] 已建立索引",
		logger.String("musicId", f.ID),
		logger.Int("entries", len(entries)))
	return nil
}

// DeleteEntriesForMusic 删除一首歌的所有索引条目
func (s *Service) DeleteEntriesForMusic(ctx context.Context, userID, musicID string) error {
	return s.repo.DeleteByMusic(ctx, userID, musicID)
}

// Search 每个单词做前缀匹配，返回按首次出现顺序去重的音乐ID并集
func (s *Service) Search(ctx context.Context, userID, term string) ([]string, error) {
	words := SearchWords(term)
	if len(words) == 0 {
		return []string{}, nil
	}

	seen := make(map[string]bool)
	ids := []string{}
	for _, w := range words {
		matches, err := s.repo.PrefixSearch(ctx, userID, w)
		if err != nil {
			return nil, fmt.Errorf("index search for %q: %w", w, err)
		}
		for _, id := range matches {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// UniqueValues 某个索引字段的去重取值，升序
func (s *Service) UniqueValues(ctx context.Context, userID, field string) ([]string, error) {
	values, err := s.repo.DistinctValues(ctx, userID, field)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// Rebuild 清空用户的全部索引并按给定曲库重建，返回成功索引的数量
func (s *Service) Rebuild(ctx context.Context, userID string, files []*model.MusicFile) (int, error) {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("failed to clear index for user %s: %w", userID, err)
	}

	ts := s.now().UTC()
	var all []model.IndexEntry
	for _, f := range files {
		if f.ID == "" {
			continue
		}
		all = append(all, Entries(f, ts)...)
	}
	if err := s.repo.AddEntries(ctx, all); err != nil {
		return 0, fmt.Errorf("failed to rebuild index for user %s: %w", userID, err)
	}

	logger.Info("[Index] 索引重建完成",
		logger.String("userId", userID),
		logger.Int("files", len(files)),
		logger.Int("entries", len(all)))
	return len(files), nil
}
