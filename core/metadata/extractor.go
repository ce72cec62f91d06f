package metadata

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Picture 内嵌封面
type Picture struct {
	Ext      string
	MIMEType string
	Data     []byte
}

// Metadata 从音频标签中读出的信息
type Metadata struct {
	Title   string
	Artist  string
	Album   string
	Genre   string
	Year    int
	Track   int
	Format  string
	Picture *Picture
}

// TitleFromFilename 去掉扩展名的文件名
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Extract 读取 ID3/MP4/FLAC/OGG 标签。标签读取失败不是错误，
// 此时只用文件名作为标题。读完后 r 会被重置到开头。
func Extract(r io.ReadSeeker, filename string) *Metadata {
	md := &Metadata{}
	defer r.Seek(0, io.SeekStart)

	m, err := tag.ReadFrom(r)
	if err == nil {
		md.Title = strings.TrimSpace(m.Title())
		md.Artist = strings.TrimSpace(m.Artist())
		if md.Artist == "" {
			md.Artist = strings.TrimSpace(m.AlbumArtist())
		}
		md.Album = strings.TrimSpace(m.Album())
		md.Genre = strings.TrimSpace(m.Genre())
		md.Year = m.Year()
		md.Track, _ = m.Track()
		md.Format = string(m.Format())
		if p := m.Picture(); p != nil && len(p.Data) > 0 {
			md.Picture = &Picture{Ext: pictureExt(p), MIMEType: p.MIMEType, Data: p.Data}
		}
	}

	if md.Title == "" {
		md.Title = TitleFromFilename(filename)
	}
	return md
}

func pictureExt(p *tag.Picture) string {
	ext := strings.TrimPrefix(strings.ToLower(p.Ext), ".")
	if ext != "" {
		return ext
	}
	switch p.MIMEType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
