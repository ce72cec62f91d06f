package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"Tunevault/model"
	"Tunevault/repository"
	"Tunevault/storage/storagetest"
)

// memoryRepo 内存版 MusicRepository
type memoryRepo struct {
	mu        sync.Mutex
	files     map[string]*model.MusicFile
	createErr error
}

func newMemoryRepo(files ...*model.MusicFile) *memoryRepo {
	r := &memoryRepo{files: make(map[string]*model.MusicFile)}
	for _, f := range files {
		r.files[f.ID] = f
	}
	return r
}

func (r *memoryRepo) Create(ctx context.Context, f *model.MusicFile) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*model.MusicFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (r *memoryRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.MusicFile, error) {
	var out []*model.MusicFile
	for _, id := range ids {
		if f, _ := r.GetByID(ctx, id); f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByUser(ctx context.Context, userID string) ([]*model.MusicFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MusicFile
	for _, f := range r.files {
		if f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Filter(ctx context.Context, userID string, filter model.MusicFilter) ([]*model.MusicFile, error) {
	all, _ := r.ListByUser(ctx, userID)
	var out []*model.MusicFile
	for _, f := range all {
		if (filter.Artist == "" || f.Artist == filter.Artist) &&
			(filter.Album == "" || f.Album == filter.Album) &&
			(filter.Title == "" || f.Title == filter.Title) &&
			(filter.Genre == "" || f.Genre == filter.Genre) &&
			(filter.Year == 0 || f.Year == filter.Year) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memoryRepo) Update(ctx context.Context, f *model.MusicFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *memoryRepo) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	all, _ := r.ListByUser(ctx, userID)
	seen := map[string]bool{}
	var out []string
	for _, f := range all {
		var v string
		switch field {
		case "artist":
			v = f.Artist
		case "album":
			v = f.Album
		}
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

// fakeIndex 记录调用，Search 返回预设结果
type fakeIndex struct {
	mu        sync.Mutex
	indexed   []string
	deleted   []string
	searchIDs []string
	searchErr error
}

func (x *fakeIndex) IndexMusicFile(ctx context.Context, f *model.MusicFile) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.indexed = append(x.indexed, f.ID)
	return nil
}

func (x *fakeIndex) DeleteEntriesForMusic(ctx context.Context, userID, musicID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deleted = append(x.deleted, musicID)
	return nil
}

func (x *fakeIndex) Search(ctx context.Context, userID, term string) ([]string, error) {
	return x.searchIDs, x.searchErr
}

type memoryCache struct {
	data        map[string][]*model.MusicFile
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]*model.MusicFile)}
}

func (c *memoryCache) Get(ctx context.Context, userID string) ([]*model.MusicFile, bool, error) {
	files, ok := c.data[userID]
	return files, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, userID string, files []*model.MusicFile) error {
	c.data[userID] = files
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, userID string) error {
	delete(c.data, userID)
	c.invalidated++
	return nil
}

type fixedProber float64

func (p fixedProber) Duration(ctx context.Context, r io.Reader) (float64, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return 0, err
	}
	return float64(p), nil
}

func testFiles(userID string) []*model.MusicFile {
	return []*model.MusicFile{
		{ID: "m1", UserID: userID, Title: "Around the World", Artist: "Daft Punk", Album: "Homework"},
		{ID: "m2", UserID: userID, Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"},
		{ID: "m3", UserID: userID, Title: "Digital Love", Artist: "Daft Punk", Album: "Discovery"},
	}
}

func ids(files []*model.MusicFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.ID
	}
	return out
}

type fixture struct {
	svc   *Service
	repo  *memoryRepo
	index *fakeIndex
	store *storagetest.MemoryStore
	cache *memoryCache
}

func newFixture(files ...*model.MusicFile) *fixture {
	f := &fixture{
		repo:  newMemoryRepo(files...),
		index: &fakeIndex{},
		store: storagetest.NewMemoryStore(),
		cache: newMemoryCache(),
	}
	f.svc = NewService(f.repo, f.index, f.store, f.cache, fixedProber(181.5), Options{MaxBytes: 1 << 10, MaxConcurrent: 1})
	f.svc.newID = func() string { return "new-id" }
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func audioInput(filename string, body []byte) UploadInput {
	return UploadInput{
		Filename:    filename,
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
	}
}

var fakeAudio = []byte(strings.Repeat("not really audio ", 8))

func TestUpload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var progress []int64
	in := audioInput("My Song.mp3", fakeAudio)
	in.Progress = func(transferred, total int64) { progress = append(progress, transferred) }
	artist := "The Band"
	in.Overrides.Artist = &artist

	got, err := f.svc.Upload(ctx, "u1", in)
	if err != nil {
		t.Fatal(err)
	}

	want := &model.MusicFile{
		ID:              "new-id",
		UserID:          "u1",
		Title:           "My Song",
		Artist:          "The Band",
		Album:           DefaultAlbum,
		Duration:        181.5,
		FileSize:        int64(len(fakeAudio)),
		FileType:        "audio/mpeg",
		UploadedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		StorageLocation: "music/u1/The_Band/Unknown_Album/My_Song.mp3",
		URL:             storagetest.PublicBase + "/media/music/u1/The_Band/Unknown_Album/My_Song.mp3",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Upload() =\n%+v\nwant\n%+v", got, want)
	}

	if !bytes.Equal(f.store.Data(want.StorageLocation), fakeAudio) {
		t.Error("stored object does not match the upload body")
	}
	if stored, _ := f.repo.GetByID(ctx, "new-id"); stored == nil {
		t.Error("record was not created")
	}
	if len(f.index.indexed) != 1 || f.index.indexed[0] != "new-id" {
		t.Errorf("indexed = %v", f.index.indexed)
	}
	if f.cache.invalidated != 1 {
		t.Errorf("cache invalidated %d times, want 1", f.cache.invalidated)
	}
	if len(progress) == 0 || progress[len(progress)-1] != int64(len(fakeAudio)) {
		t.Errorf("progress = %v", progress)
	}
}

func TestUploadDurationOverrideSkipsProbe(t *testing.T) {
	f := newFixture()
	in := audioInput("a.mp3", fakeAudio)
	d := 42.0
	in.Overrides.Duration = &d

	got, err := f.svc.Upload(context.Background(), "u1", in)
	if err != nil {
		t.Fatal(err)
	}
	if got.Duration != 42 {
		t.Errorf("duration = %v, want 42", got.Duration)
	}
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"empty", audioInput("a.mp3", nil), ErrEmptyFile},
		{"too large", audioInput("a.mp3", make([]byte, 2<<10)), ErrFileTooLarge},
		{"not audio", UploadInput{Filename: "a.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("abc")}, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if _, err := f.svc.Upload(context.Background(), "u1", tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if keys := f.store.Keys(); len(keys) != 0 {
				t.Errorf("objects written for a rejected upload: %v", keys)
			}
		})
	}
}

func TestUploadBusy(t *testing.T) {
	f := newFixture()
	f.svc.sem <- struct{}{} // 占满唯一的槽位
	defer func() { <-f.svc.sem }()

	if _, err := f.svc.Upload(context.Background(), "u1", audioInput("a.mp3", fakeAudio)); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestUploadRollsBackObject(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("db down")

	if _, err := f.svc.Upload(context.Background(), "u1", audioInput("a.mp3", fakeAudio)); err == nil {
		t.Fatal("expected an error")
	}
	if keys := f.store.Keys(); len(keys) != 0 {
		t.Errorf("object left behind after failed insert: %v", keys)
	}
	if len(f.index.indexed) != 0 {
		t.Error("failed upload must not be indexed")
	}
}

func TestUploadStoreFailure(t *testing.T) {
	f := newFixture()
	f.store.PutErr = errors.New("bucket gone")

	if _, err := f.svc.Upload(context.Background(), "u1", audioInput("a.mp3", fakeAudio)); err == nil {
		t.Fatal("expected an error")
	}
	if files, _ := f.repo.ListByUser(context.Background(), "u1"); len(files) != 0 {
		t.Error("record created although the object was not stored")
	}
}

func TestListUsesCache(t *testing.T) {
	f := newFixture(testFiles("u1")...)
	ctx := context.Background()

	first, err := f.svc.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("len = %d, want 3", len(first))
	}

	// 直接改仓储，缓存命中时看不到变化
	f.repo.files["m4"] = &model.MusicFile{ID: "m4", UserID: "u1"}
	second, _ := f.svc.List(ctx, "u1")
	if len(second) != 3 {
		t.Errorf("cached list len = %d, want 3", len(second))
	}

	empty, err := f.svc.List(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("unknown user: files = %v, err = %v", empty, err)
	}
}

func TestFilter(t *testing.T) {
	f := newFixture(testFiles("u1")...)
	got, err := f.svc.Filter(context.Background(), "u1", model.MusicFilter{Artist: "Daft Punk"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"m1", "m3"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}

	all, _ := f.svc.Filter(context.Background(), "u1", model.MusicFilter{})
	if len(all) != 3 {
		t.Errorf("empty filter len = %d, want 3", len(all))
	}
}

func TestGetOwnership(t *testing.T) {
	f := newFixture(testFiles("u1")...)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, "u1", "m1"); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := f.svc.Get(ctx, "u2", "m1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user: err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Get(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMetadata(t *testing.T) {
	f := newFixture(testFiles("u1")...)
	ctx := context.Background()

	title := "Around the World (Radio Edit)"
	year := 1997
	got, err := f.svc.UpdateMetadata(ctx, "u1", "m1", model.MetadataPatch{Title: &title, Year: &year})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != title || got.Year != 1997 || got.Artist != "Daft Punk" {
		t.Errorf("got %+v", got)
	}
	if stored, _ := f.repo.GetByID(ctx, "m1"); stored.Title != title {
		t.Errorf("stored title = %q", stored.Title)
	}
	if len(f.index.indexed) != 1 {
		t.Errorf("reindexed %d times, want 1", len(f.index.indexed))
	}

	if _, err := f.svc.UpdateMetadata(ctx, "u2", "m1", model.MetadataPatch{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user: err = %v, want ErrForbidden", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	uploaded, err := f.svc.Upload(ctx, "u1", audioInput("a.mp3", fakeAudio))
	if err != nil {
		t.Fatal(err)
	}
	// 模拟已保存的内嵌封面
	coverKey := CoverPath("u1", uploaded.ID, "jpg")
	if err := f.store.Put(ctx, coverKey, strings.NewReader("img"), 3, "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	cover := f.store.URL(coverKey)
	if _, err := f.svc.UpdateMetadata(ctx, "u1", uploaded.ID, model.MetadataPatch{CoverArt: &cover}); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, "u2", uploaded.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other user: err = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(ctx, "u1", uploaded.ID); err != nil {
		t.Fatal(err)
	}

	if keys := f.store.Keys(); len(keys) != 0 {
		t.Errorf("objects left after delete: %v", keys)
	}
	if stored, _ := f.repo.GetByID(ctx, uploaded.ID); stored != nil {
		t.Error("record still exists")
	}
	if len(f.index.deleted) != 1 || f.index.deleted[0] != uploaded.ID {
		t.Errorf("index deletions = %v", f.index.deleted)
	}
	if err := f.svc.Delete(ctx, "u1", uploaded.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteKeepsForeignCover(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	shared := "playlist-covers/u1/p.png"
	if err := f.store.Put(ctx, shared, strings.NewReader("img"), 3, "image/png"); err != nil {
		t.Fatal(err)
	}
	cover := f.store.URL(shared)
	file := &model.MusicFile{ID: "m1", UserID: "u1", StorageLocation: "music/u1/a.mp3", CoverArt: cover}
	f.repo.files["m1"] = file

	// 音频对象不存在也不应该报错
	if err := f.svc.Delete(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}
	if !f.store.Has(shared) {
		t.Error("cover that is not an embedded cover of the track was removed")
	}
}

func TestUniqueValues(t *testing.T) {
	f := newFixture(testFiles("u1")...)
	got, err := f.svc.UniqueValues(context.Background(), "u1", "artist")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Daft Punk", "Queen"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := f.svc.UniqueValues(context.Background(), "u1", "storageLocation"); !errors.Is(err, ErrInvalidField) {
		t.Errorf("err = %v, want ErrInvalidField", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	files := append(testFiles("u1"), &model.MusicFile{ID: "x1", UserID: "u2", Title: "Daft"})

	t.Run("index order is kept", func(t *testing.T) {
		f := newFixture(files...)
		f.index.searchIDs = []string{"m3", "gone", "x1", "m1"}
		res, err := f.svc.Search(ctx, "u1", "daft")
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"m3", "m1"}; !reflect.DeepEqual(ids(res.Files), want) || res.Fallback {
			t.Errorf("got %v fallback=%v, want %v", ids(res.Files), res.Fallback, want)
		}
	})

	t.Run("index failure falls back", func(t *testing.T) {
		f := newFixture(files...)
		f.index.searchErr = errors.New("index table missing")
		res, err := f.svc.Search(ctx, "u1", "opera")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Fallback || !reflect.DeepEqual(ids(res.Files), []string{"m2"}) {
			t.Errorf("got %v fallback=%v", ids(res.Files), res.Fallback)
		}
	})

	t.Run("empty query lists all", func(t *testing.T) {
		f := newFixture(files...)
		res, err := f.svc.Search(ctx, "u1", "  ")
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Files) != 3 {
			t.Errorf("len = %d, want 3", len(res.Files))
		}
	})

	t.Run("no hits", func(t *testing.T) {
		f := newFixture(files...)
		res, err := f.svc.Search(ctx, "u1", "nothing")
		if err != nil {
			t.Fatal(err)
		}
		if res.Files == nil || len(res.Files) != 0 {
			t.Errorf("got %v, want empty slice", res.Files)
		}
	})
}
