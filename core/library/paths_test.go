package library

import (
	"errors"
	"testing"
)

func TestStoragePath(t *testing.T) {
	tests := []struct {
		name                             string
		userID, artist, album, filename string
		want                             string
	}{
		{"plain", "u1", "Daft Punk", "Discovery", "one more time.mp3", "music/u1/Daft_Punk/Discovery/one_more_time.mp3"},
		{"defaults", "u1", "", "  ", "a.flac", "music/u1/Unknown_Artist/Unknown_Album/a.flac"},
		{"unicode", "u2", "周杰伦", "范特西", "晴天.mp3", "music/u2/___/___/__.mp3"},
		{"path in filename", "u1", "A", "B", "../../etc/passwd", "music/u1/A/B/passwd"},
		{"windows path", "u1", "A", "B", `C:\music\x.ogg`, "music/u1/A/B/x.ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StoragePath(tt.userID, tt.artist, tt.album, tt.filename); got != tt.want {
				t.Errorf("StoragePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoverPath(t *testing.T) {
	if got := CoverPath("u1", "m1", ".png"); got != "covers/u1/m1.png" {
		t.Errorf("got %q", got)
	}
	if got := CoverPath("u1", "m1", ""); got != "covers/u1/m1.jpg" {
		t.Errorf("empty ext: got %q", got)
	}
	if !IsOwnedCover("u1", "covers/u1/m1.png") {
		t.Error("own cover not recognised")
	}
	if IsOwnedCover("u1", "covers/u10/m1.png") || IsOwnedCover("u1", "playlist-covers/u1/x.png") {
		t.Error("foreign key reported as owned cover")
	}
}

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		filename, contentType string
		want                  string
		wantErr               bool
	}{
		{"a.mp3", "audio/mpeg", "audio/mpeg", false},
		{"a.mp3", "Audio/MPEG; charset=binary", "audio/mpeg", false},
		{"a.flac", "application/octet-stream", "audio/flac", false},
		{"a.m4a", "", "audio/mp4", false},
		{"a.ogg", "video/ogg", "audio/ogg", false},
		{"a.txt", "text/plain", "", true},
		{"a.exe", "application/octet-stream", "", true},
		{"a.mp3", "image/png", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename+" "+tt.contentType, func(t *testing.T) {
			got, err := ResolveContentType(tt.filename, tt.contentType)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Errorf("err = %v, want ErrUnsupportedType", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchSubstring(t *testing.T) {
	files := testFiles("u1")
	got := MatchSubstring(files, "  QUEEN ")
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("got %v", ids(got))
	}
	if got := MatchSubstring(files, "zzz"); got == nil || len(got) != 0 {
		t.Errorf("no match should be an empty slice, got %v", got)
	}
}
