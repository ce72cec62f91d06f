package library

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	DefaultArtist = "Unknown Artist"
	DefaultAlbum  = "Unknown Album"
)

var (
	unsafeSegment  = regexp.MustCompile(`[^a-zA-Z0-9]`)
	unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9.]`)
)

// SanitizeSegment 把 [a-zA-Z0-9] 以外的字符替换为下划线
func SanitizeSegment(s string) string {
	return unsafeSegment.ReplaceAllString(s, "_")
}

// SanitizeFilename 同 SanitizeSegment，但保留点号
func SanitizeFilename(name string) string {
	return unsafeFilename.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
}

// StoragePath 音频对象路径 music/{userId}/{artist}/{album}/{filename}
func StoragePath(userID, artist, album, filename string) string {
	if strings.TrimSpace(artist) == "" {
		artist = DefaultArtist
	}
	if strings.TrimSpace(album) == "" {
		album = DefaultAlbum
	}
	return fmt.Sprintf("music/%s/%s/%s/%s",
		userID, SanitizeSegment(artist), SanitizeSegment(album), SanitizeFilename(filename))
}

// CoverPath 内嵌封面的对象路径 covers/{userId}/{musicId}.{ext}
func CoverPath(userID, musicID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("covers/%s/%s.%s", userID, musicID, ext)
}

// IsOwnedCover reports whether key is an embedded cover written for this user.
func IsOwnedCover(userID, key string) bool {
	return strings.HasPrefix(key, "covers/"+userID+"/")
}
