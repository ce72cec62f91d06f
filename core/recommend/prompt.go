package recommend

import (
	"fmt"
	"strings"

	"Tunevault/model"
)

// Kind 推荐类型
type Kind string

const (
	KindSimilar  Kind = "similar"
	KindDiscover Kind = "discover"
)

// ParseKind 未知或空值按 similar 处理
func ParseKind(s string) Kind {
	if Kind(strings.ToLower(strings.TrimSpace(s))) == KindDiscover {
		return KindDiscover
	}
	return KindSimilar
}

const jsonFormatInstructions = `Please provide 5 song recommendations in a structured JSON format. Focus on musical elements like genre, style, tempo, and mood.

Required JSON format:
[
  {
    "title": "Song Name",
    "artist": "Artist Name",
    "reason": "Brief explanation of how the song aligns in terms of mood, instrumentation, genre, or vocal style."
  }
]

Rules:

1. Focus on musical qualities only
2. Use proper JSON formatting with double quotes
3. Provide exactly 5 recommendations
4. Keep reasons brief and focused on musical elements`

// SongList 每行一首 "- title by artist"
func SongList(songs []model.SongRef) string {
	lines := make([]string, len(songs))
	for i, s := range songs {
		lines[i] = fmt.Sprintf("- %s by %s", s.Title, s.Artist)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt 生成发给模型的提示词
func BuildPrompt(songs []model.SongRef, kind Kind) string {
	task := "analyze the following songs and suggest similar music"
	if kind == KindDiscover {
		task = "analyze the following songs and suggest music from different genres and artists outside these preferences that still matches their energy and rhythm"
	}
	return fmt.Sprintf("Act as a music recommendation system. Your task is to %s:\n\nInput songs:\n%s\n\n%s",
		task, SongList(songs), jsonFormatInstructions)
}
