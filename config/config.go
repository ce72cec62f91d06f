package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OAuthProviderConfig holds the client credentials of one federated sign-in provider.
// AuthURL/TokenURL/UserInfoURL are only required for providers without a
// well-known endpoint in golang.org/x/oauth2 (soundcloud, apple, deezer).
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Enabled reports whether the provider has credentials configured.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Config stores the application configuration.
type Config struct {
	// HTTP
	ServerAddr    string
	WebAppDir     string
	PublicBaseURL string // prefix used to build media URLs, e.g. "http://localhost:8080"

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// 认证
	JWTSecret       string
	JWTTTL          time.Duration
	ResetTokenTTL   time.Duration
	OAuthStateTTL   time.Duration
	OAuthProviders  map[string]OAuthProviderConfig
	MinPasswordSize int

	// 上传
	FFprobePath         string
	UploadMaxBytes      int64
	UploadMaxConcurrent int
	UploadTimeout       time.Duration
	CoverMaxBytes       int64
	LibraryCacheTTL     time.Duration

	// 播放器
	PlayerStateTTL time.Duration

	// AI 推荐
	RecommendProvider      string // "gemini" or "openai"
	GoogleAIAPIKey         string
	GeminiBaseURL          string
	GeminiModel            string
	OpenAIBaseURL          string
	OpenAIAPIKey           string
	OpenAIModel            string
	RecommendRatePerMinute int
	RecommendCacheTTL      time.Duration
	RecommendTimeout       time.Duration

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "24h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SupportedProviders lists the federated sign-in providers in display order.
var SupportedProviders = []string{"google", "spotify", "soundcloud", "apple", "deezer"}

var defaultScopes = map[string][]string{
	"google":     {"openid", "email", "profile"},
	"spotify":    {"user-read-email", "user-read-private", "playlist-read-private"},
	"soundcloud": nil,
	"apple":      {"email", "name"},
	"deezer":     {"basic_access", "email"},
}

func loadOAuthProvider(name string) OAuthProviderConfig {
	prefix := "OAUTH_" + strings.ToUpper(name) + "_"
	return OAuthProviderConfig{
		ClientID:     os.Getenv(prefix + "CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
		RedirectURL:  getEnv(prefix+"REDIRECT_URL", "http://localhost:8080/api/auth/providers/"+name+"/callback"),
		AuthURL:      os.Getenv(prefix + "AUTH_URL"),
		TokenURL:     os.Getenv(prefix + "TOKEN_URL"),
		UserInfoURL:  os.Getenv(prefix + "USERINFO_URL"),
		Scopes:       getEnvList(prefix+"SCOPES", defaultScopes[name]),
	}
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	providers := make(map[string]OAuthProviderConfig, len(SupportedProviders))
	for _, name := range SupportedProviders {
		providers[name] = loadOAuthProvider(name)
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		WebAppDir:     getEnv("WEB_APP_DIR", "web/ui"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // 密码不设默认值
		DBName:     getEnv("DB_NAME", "tunevault"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "tunevault"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		JWTSecret:       getEnv("JWT_SECRET", "change-me"),
		JWTTTL:          getEnvDuration("JWT_TTL", 7*24*time.Hour),
		ResetTokenTTL:   getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		OAuthStateTTL:   getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		OAuthProviders:  providers,
		MinPasswordSize: getEnvInt("MIN_PASSWORD_SIZE", 6),

		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		UploadMaxBytes:      getEnvInt64("UPLOAD_MAX_BYTES", 100<<20),
		UploadMaxConcurrent: getEnvInt("UPLOAD_MAX_CONCURRENT", 5),
		UploadTimeout:       getEnvDuration("UPLOAD_TIMEOUT", 5*time.Minute),
		CoverMaxBytes:       getEnvInt64("COVER_MAX_BYTES", 10<<20),
		LibraryCacheTTL:     getEnvDuration("LIBRARY_CACHE_TTL", 10*time.Minute),

		PlayerStateTTL: getEnvDuration("PLAYER_STATE_TTL", 24*time.Hour),

		RecommendProvider:      getEnv("RECOMMEND_PROVIDER", "gemini"),
		GoogleAIAPIKey:         os.Getenv("GOOGLE_AI_API_KEY"),
		GeminiBaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-pro"),
		OpenAIBaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RecommendRatePerMinute: getEnvInt("RECOMMEND_RATE_PER_MINUTE", 30),
		RecommendCacheTTL:      getEnvDuration("RECOMMEND_CACHE_TTL", 6*time.Hour),
		RecommendTimeout:       getEnvDuration("RECOMMEND_TIMEOUT", 60*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "logs/tunevault.log"),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}
