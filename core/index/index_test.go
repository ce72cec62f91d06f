package index

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"Tunevault/model"
)

// memoryIndex 内存版 IndexRepository，条目按写入顺序保存
type memoryIndex struct {
	entries []model.IndexEntry
	failAdd error
}

func (m *memoryIndex) AddEntries(ctx context.Context, entries []model.IndexEntry) error {
	if m.failAdd != nil {
		return m.failAdd
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memoryIndex) DeleteByMusic(ctx context.Context, userID, musicID string) error {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.UserID != userID || e.MusicID != musicID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *memoryIndex) DeleteByUser(ctx context.Context, userID string) error {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *memoryIndex) PrefixSearch(ctx context.Context, userID, prefix string) ([]string, error) {
	var ids []string
	for _, e := range m.entries {
		if e.UserID == userID && strings.HasPrefix(e.Value, prefix) {
			ids = append(ids, e.MusicID)
		}
	}
	return ids, nil
}

func (m *memoryIndex) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, e := range m.entries {
		if e.UserID == userID && e.Field == field && !seen[e.Value] {
			seen[e.Value] = true
			out = append(out, e.Value)
		}
	}
	sort.Strings(out)
	return out, nil
}

var indexedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memoryIndex) {
	repo := &memoryIndex{}
	s := NewService(repo)
	s.now = func() time.Time { return indexedAt }
	return s, repo
}

func TestEntries(t *testing.T) {
	f := &model.MusicFile{ID: "m1", UserID: "u1", Title: "Hey Jude", Artist: "The Beatles", Genre: "  "}
	got := Entries(f, indexedAt)

	type fv struct{ field, value string }
	var pairs []fv
	for _, e := range got {
		if e.UserID != "u1" || e.MusicID != "m1" || !e.Timestamp.Equal(indexedAt) {
			t.Fatalf("bad entry %+v", e)
		}
		pairs = append(pairs, fv{e.Field, e.Value})
	}
	want := []fv{
		{"title", "hey jude"},
		{"title_word", "hey"},
		{"title_word", "jude"},
		{"artist", "the beatles"},
		{"artist_word", "the"},
		{"artist_word", "beatles"},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("entries =\n%v\nwant\n%v", pairs, want)
	}
}

func TestEntriesSkipsShortWords(t *testing.T) {
	f := &model.MusicFile{ID: "m1", UserID: "u1", Title: "Go to LA"}
	var words []string
	for _, e := range Entries(f, indexedAt) {
		if e.Field == "title_word" {
			words = append(words, e.Value)
		}
	}
	if len(words) != 0 {
		t.Errorf("short words indexed: %v", words)
	}
}

func TestSearchWords(t *testing.T) {
	tests := []struct {
		term string
		want []string
	}{
		{"  Jude ", []string{"jude"}},
		{"a", nil},
		{"the a beatles", []string{"the", "beatles"}},
		{"周杰伦", []string{"周杰伦"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SearchWords(tt.term); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SearchWords(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}

func TestIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService()
	files := []*model.MusicFile{
		{ID: "m1", UserID: "u1", Title: "Hey Jude", Artist: "The Beatles"},
		{ID: "m2", UserID: "u1", Title: "Jumpin' Jack Flash", Artist: "The Rolling Stones"},
		{ID: "m3", UserID: "u2", Title: "Hey Ya!", Artist: "OutKast"},
	}
	for _, f := range files {
		if err := s.IndexMusicFile(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		userID, term string
		want         []string
	}{
		{"u1", "ju", []string{"m1", "m2"}},
		{"u1", "beat", []string{"m1"}},
		{"u1", "hey", []string{"m1"}},
		{"u2", "hey", []string{"m3"}},
		{"u1", "stones hey", []string{"m2", "m1"}},
		{"u1", "x", []string{}},
		{"u1", "zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.userID+"/"+tt.term, func(t *testing.T) {
			got, err := s.Search(ctx, tt.userID, tt.term)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReindexReplacesEntries(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService()
	f := &model.MusicFile{ID: "m1", UserID: "u1", Title: "Draft title"}
	if err := s.IndexMusicFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	f.Title = "Final"
	if err := s.IndexMusicFile(ctx, f); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.Search(ctx, "u1", "draft"); len(got) != 0 {
		t.Errorf("stale entries still match: %v", got)
	}
	if got, _ := s.Search(ctx, "u1", "final"); len(got) != 1 {
		t.Errorf("new title not found: %v", got)
	}

	if err := s.DeleteEntriesForMusic(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}
	if len(repo.entries) != 0 {
		t.Errorf("entries left after delete: %v", repo.entries)
	}

	if err := s.IndexMusicFile(ctx, &model.MusicFile{UserID: "u1"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
}

func TestUniqueValues(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService()
	for _, f := range []*model.MusicFile{
		{ID: "m1", UserID: "u1", Artist: "Queen"},
		{ID: "m2", UserID: "u1", Artist: "ABBA"},
		{ID: "m3", UserID: "u1", Artist: "queen"},
	} {
		if err := s.IndexMusicFile(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.UniqueValues(ctx, "u1", "artist")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"abba", "queen"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, _ := s.UniqueValues(ctx, "nobody", "artist"); got == nil || len(got) != 0 {
		t.Errorf("unknown user = %v, want empty slice", got)
	}
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService()
	if err := s.IndexMusicFile(ctx, &model.MusicFile{ID: "old", UserID: "u1", Title: "Gone song"}); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexMusicFile(ctx, &model.MusicFile{ID: "other", UserID: "u2", Title: "Gone song"}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Rebuild(ctx, "u1", []*model.MusicFile{
		{ID: "m1", UserID: "u1", Title: "Fresh"},
		{ID: "m2", UserID: "u1", Title: "Fresher"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rebuilt %d, want 2", n)
	}
	if got, _ := s.Search(ctx, "u1", "gone"); len(got) != 0 {
		t.Errorf("old entries survived rebuild: %v", got)
	}
	if got, _ := s.Search(ctx, "u1", "fresh"); !reflect.DeepEqual(got, []string{"m1", "m2"}) {
		t.Errorf("got %v", got)
	}
	if got, _ := s.Search(ctx, "u2", "gone"); len(got) != 1 {
		t.Error("rebuild touched another user's index")
	}

	repo.failAdd = errors.New("disk full")
	if _, err := s.Rebuild(ctx, "u1", nil); err == nil {
		t.Error("expected error from failed insert")
	}
}
