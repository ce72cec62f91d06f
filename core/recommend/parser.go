package recommend

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"Tunevault/model"
)

const (
	maxRecommendations = 5
	fallbackReason     = "Similar musical style and genre"
)

var (
	errNotArray      = errors.New("response is not a JSON array")
	errNoValidResult = errors.New("no valid recommendations received")
)

var (
	codeFence      = regexp.MustCompile("```json\\n?|\\n?```")
	smartQuotes    = strings.NewReplacer("\u201C", `"`, "\u201D", `"`)
	controlChars   = strings.NewReplacer("\r", "", "\n", "", "\t", "")
	trailingArray  = regexp.MustCompile(`,\s*]`)
	trailingObject = regexp.MustCompile(`,\s*}`)
	jsonArraySpan  = regexp.MustCompile(`(?s)\[.*\]`)
	titleByArtist  = regexp.MustCompile(`["']([^"']+)["']\s*by\s*["']([^"']+)["']`)
)

// CleanResponse 清理模型回复里常见的格式问题
func CleanResponse(text string) string {
	s := strings.TrimSpace(text)
	s = codeFence.ReplaceAllString(s, "")
	s = smartQuotes.Replace(s)
	s = controlChars.Replace(s)
	s = trailingArray.ReplaceAllString(s, "]")
	s = trailingObject.ReplaceAllString(s, "}")
	return s
}

// ParseJSON 从回复中解析 JSON 数组，保留前 5 条完整的推荐
func ParseJSON(text string) ([]model.Recommendation, error) {
	cleaned := CleanResponse(text)
	jsonText := cleaned
	if m := jsonArraySpan.FindString(cleaned); m != "" {
		jsonText = m
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations: %w", err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errNotArray
	}
	if len(items) > maxRecommendations {
		items = items[:maxRecommendations]
	}

	recs := []model.Recommendation{}
	for _, item := range items {
		obj, _ := item.(map[string]interface{})
		rec := model.Recommendation{
			Title:  stringField(obj, "title"),
			Artist: stringField(obj, "artist"),
			Reason: stringField(obj, "reason"),
		}
		if rec.Title == "" || rec.Artist == "" || rec.Reason == "" {
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, errNoValidResult
	}
	return recs, nil
}

func stringField(obj map[string]interface{}, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ParseFallback 用 "title" by "artist" 的正则从原始回复中提取推荐
func ParseFallback(text string) []model.Recommendation {
	matches := titleByArtist.FindAllStringSubmatch(text, maxRecommendations)
	recs := make([]model.Recommendation, 0, len(matches))
	for _, m := range matches {
		title, artist := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if title == "" || artist == "" {
			continue
		}
		recs = append(recs, model.Recommendation{Title: title, Artist: artist, Reason: fallbackReason})
	}
	return recs
}

// Parse 先按 JSON 解析，失败后用正则兜底；第二个返回值表示是否使用了兜底
func Parse(text string) ([]model.Recommendation, bool, error) {
	recs, err := ParseJSON(text)
	if err == nil {
		return recs, false, nil
	}
	if fb := ParseFallback(text); len(fb) > 0 {
		return fb, true, nil
	}
	return nil, false, fmt.Errorf("%w: %v", ErrNoRecommendations, err)
}
