package server

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"Tunevault/model"
)

func decodePlaylist(t *testing.T, body []byte) model.Playlist {
	t.Helper()
	var p model.Playlist
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("body %q: %v", body, err)
	}
	return p
}

func (s *testServer) uploadCover(t *testing.T, token, target, filename string) string {
	t.Helper()
	body, header := multipartForm(t, "image", filename, "image/png", []byte("png!"), nil)
	rec := s.do(t, http.MethodPost, target, token, body, header)
	if rec.Code != http.StatusOK && rec.Code != http.StatusCreated {
		t.Fatalf("cover upload: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.URL
}

func TestPlaylistHandlers(t *testing.T) {
	s := newTestServer(t)
	token, _ := issueToken(t, "u1")
	other, _ := issueToken(t, "u2")
	for _, f := range []*model.MusicFile{
		{ID: "m1", UserID: "u1", Title: "One"},
		{ID: "m2", UserID: "u1", Title: "Two"},
		{ID: "m3", UserID: "u1", Title: "Three"},
	} {
		s.music.put(f)
	}

	if rec := s.do(t, http.MethodPost, "/api/playlists", token, `{"name":"  "}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("blank name: status = %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/playlists", token, `{"name":"Road trip"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	p := decodePlaylist(t, rec.Body.Bytes())
	base := "/api/playlists/" + p.ID

	for _, id := range []string{"m1", "m2", "m3", "m1"} {
		if rec := s.do(t, http.MethodPost, base+"/songs", token, `{"songId":"`+id+`"}`, nil); rec.Code != http.StatusOK {
			t.Fatalf("add %s: status = %d", id, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodPost, base+"/songs", token, `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("add without songId: status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, base+"/order", token, `{"songIds":["m3","m1","m2"]}`, nil)
	if got := decodePlaylist(t, rec.Body.Bytes()); !reflect.DeepEqual([]string(got.SongIDs), []string{"m3", "m1", "m2"}) {
		t.Errorf("reordered = %v", got.SongIDs)
	}
	if rec := s.do(t, http.MethodPut, base+"/order", token, `{"songIds":["m1"]}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("partial order: status = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, base+"/songs/m1", token, "", nil); rec.Code != http.StatusOK {
		t.Errorf("remove song: status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, base+"/songs", token, "", nil)
	var songs []*model.MusicFile
	if err := json.Unmarshal(rec.Body.Bytes(), &songs); err != nil {
		t.Fatal(err)
	}
	if got := titles(songs); !reflect.DeepEqual(got, []string{"Three", "Two"}) {
		t.Errorf("songs = %v", got)
	}

	// 私有歌单
	if rec := s.do(t, http.MethodGet, base, other, "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("private for other user: status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, base, token, `{"isPublic":true}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("publish: status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, base, other, "", nil); rec.Code != http.StatusOK {
		t.Errorf("public for other user: status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/playlists/public", "", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), p.ID) {
		t.Errorf("public list: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, base+"/songs", other, `{"songId":"m1"}`, nil); rec.Code != http.StatusForbidden {
		t.Errorf("add by other user: status = %d", rec.Code)
	}
}

func TestPlaylistCoverHandlers(t *testing.T) {
	s := newTestServer(t)
	token, _ := issueToken(t, "u1")
	other, _ := issueToken(t, "u2")

	// 创建前先上传封面
	draft := s.uploadCover(t, token, "/api/playlists/cover", "draft.png")
	draftKey, ok := s.store.KeyOf(draft)
	if !ok || !strings.HasPrefix(draftKey, "playlist_covers/u1/new/") {
		t.Fatalf("draft cover key = %q", draftKey)
	}
	rec := s.do(t, http.MethodPost, "/api/playlists", token, `{"name":"Mix","coverImage":"`+draft+`"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	p := decodePlaylist(t, rec.Body.Bytes())
	base := "/api/playlists/" + p.ID

	// 替换封面后旧对象被删除
	first := s.uploadCover(t, token, base+"/cover", "first.png")
	if s.store.Has(draftKey) {
		t.Error("draft cover not removed after replacement")
	}
	second := s.uploadCover(t, token, base+"/cover", "second.png")
	firstKey, _ := s.store.KeyOf(first)
	secondKey, _ := s.store.KeyOf(second)
	if s.store.Has(firstKey) || !s.store.Has(secondKey) {
		t.Errorf("keys after replacement = %v", s.store.Keys())
	}

	body, header := multipartForm(t, "image", "song.mp3", "audio/mpeg", []byte("mp3"), nil)
	if rec := s.do(t, http.MethodPost, base+"/cover", token, body, header); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("non-image: status = %d", rec.Code)
	}
	body, header = multipartForm(t, "image", "c.png", "image/png", []byte("png"), nil)
	if rec := s.do(t, http.MethodPost, base+"/cover", other, body, header); rec.Code != http.StatusForbidden {
		t.Errorf("other user's playlist: status = %d", rec.Code)
	}

	// 不能把别人的对象设为封面
	victim := s.store.URL("music/u2/Artist/Album/song.mp3")
	if err := s.store.Put(context.Background(), "music/u2/Artist/Album/song.mp3", strings.NewReader("mp3"), 3, "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	rec = s.do(t, http.MethodPatch, base, token, `{"coverImage":"`+victim+`"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("foreign cover: status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/playlists", token, `{"name":"Evil","coverImage":"`+victim+`"}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("foreign cover on create: status = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, base, token, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if want := []string{"music/u2/Artist/Album/song.mp3"}; !reflect.DeepEqual(s.store.Keys(), want) {
		t.Errorf("keys after delete = %v, want %v", s.store.Keys(), want)
	}
}
