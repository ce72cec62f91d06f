// Package recommend asks a generative-language model for song
// recommendations based on a list of songs and parses its loosely
// formatted reply.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Tunevault/config"
	"Tunevault/logger"
	"Tunevault/model"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

var (
	ErrNoSongs           = errors.New("invalid request: songs array is required")
	ErrNotConfigured     = errors.New("API key not configured")
	ErrNoRecommendations = errors.New("could not generate recommendations, please try again")
	ErrRateLimited       = errors.New("too many recommendation requests, please slow down")
)

// Cache 推荐结果缓存
type Cache interface {
	Get(ctx context.Context, key string) ([]model.Recommendation, bool, error)
	Set(ctx context.Context, key string, recs []model.Recommendation) error
}

// Service 推荐服务
type Service struct {
	gen     Generator
	cache   Cache
	limiter *rate.Limiter
	timeout time.Duration
}

// NewService creates the service. gen == nil means no API key is configured;
// cache may be nil; ratePerMinute <= 0 disables throttling.
func NewService(gen Generator, cache Cache, ratePerMinute int, timeout time.Duration) *Service {
	s := &Service{gen: gen, cache: cache, timeout: timeout}
	if ratePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return s
}

// NewGeneratorFromConfig 按 RECOMMEND_PROVIDER 选择后端，缺少密钥时返回 nil
func NewGeneratorFromConfig(cfg *config.Config) Generator {
	switch strings.ToLower(cfg.RecommendProvider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("[Recommend] OPENAI_API_KEY 未设置，推荐功能不可用")
			return nil
		}
		return NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.RecommendTimeout)
	default:
		if cfg.GoogleAIAPIKey == "" {
			logger.Warn("[Recommend] GOOGLE_AI_API_KEY 未设置，推荐功能不可用")
			return nil
		}
		return NewGeminiClient(cfg.GeminiBaseURL, cfg.GoogleAIAPIKey, cfg.GeminiModel, cfg.RecommendTimeout)
	}
}

// CacheKey 歌曲列表（忽略大小写和首尾空白）加推荐类型的哈希
func CacheKey(songs []model.SongRef, kind Kind) string {
	d := xxhash.New()
	d.WriteString(string(kind))
	for _, s := range songs {
		d.WriteString("\n")
		d.WriteString(strings.ToLower(strings.TrimSpace(s.Title)))
		d.WriteString("\x00")
		d.WriteString(strings.ToLower(strings.TrimSpace(s.Artist)))
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// Recommend 请求推荐
func (s *Service) Recommend(ctx context.Context, songs []model.SongRef, kind Kind) (*model.RecommendationResponse, error) {
	if s.gen == nil {
		return nil, ErrNotConfigured
	}
	if len(songs) == 0 {
		return nil, ErrNoSongs
	}

	key := CacheKey(songs, kind)
	if s.cache != nil {
		recs, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("[Recommend] 读取推荐缓存失败", logger.ErrorField(err))
		} else if ok {
			return &model.RecommendationResponse{Recommendations: recs, Cached: true}, nil
		}
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.gen.Generate(ctx, BuildPrompt(songs, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}

	recs, fallback, err := Parse(text)
	if err != nil {
		logger.Error("[Recommend] 解析模型回复失败",
			logger.ErrorField(err),
			logger.String("raw", text))
		return nil, err
	}
	if fallback {
		logger.Warn("[Recommend] JSON 解析失败，使用正则兜底", logger.Int("count", len(recs)))
	}

	logger.Info("[Recommend] 推荐完成",
		logger.Int("songs", len(songs)),
		logger.String("kind", string(kind)),
		logger.Int("count", len(recs)),
		logger.Duration("elapsed", time.Since(start)))

	if s.cache != nil && !fallback {
		if err := s.cache.Set(ctx, key, recs); err != nil {
			logger.Warn("[Recommend] 写入推荐缓存失败", logger.ErrorField(err))
		}
	}
	return &model.RecommendationResponse{Recommendations: recs, Fallback: fallback}, nil
}
