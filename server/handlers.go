package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"Tunevault/config"
	"Tunevault/core/auth"
	"Tunevault/core/index"
	"Tunevault/core/library"
	"Tunevault/core/player"
	"Tunevault/core/playlist"
	"Tunevault/core/recommend"
	"Tunevault/logger"
	"Tunevault/storage"

	"github.com/gorilla/websocket"
)

// Services 处理器依赖的业务服务
type Services struct {
	Auth      *auth.Service
	Library   *library.Service
	Index     *index.Service
	Playlists *playlist.Service
	Players   *player.Manager
	Hub       *player.Hub
	Recommend *recommend.Service
	Store     storage.ObjectStore
}

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg       *config.Config
	auth      *auth.Service
	library   *library.Service
	index     *index.Service
	playlists *playlist.Service
	players   *player.Manager
	hub       *player.Hub
	recommend *recommend.Service
	store     storage.ObjectStore
	upgrader  websocket.Upgrader
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(cfg *config.Config, svc Services) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		auth:      svc.Auth,
		library:   svc.Library,
		index:     svc.Index,
		playlists: svc.Playlists,
		players:   svc.Players,
		hub:       svc.Hub,
		recommend: svc.Recommend,
		store:     svc.Store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type contextKey string

const (
	userIDKey contextKey = "userID"
	emailKey  contextKey = "email"
	tokenKey  contextKey = "token"
)

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// bearerToken 读取 Authorization 头；WebSocket 连接无法设置请求头，使用 ?token=
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
		return "", errors.New("Authorization header is required")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

// AuthMiddleware 校验 JWT 并把用户信息放进请求上下文
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, emailKey, claims.Email)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] 写入响应失败", logger.ErrorField(err))
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type errorMapping struct {
	err     error
	status  int
	message string
}

// errorStatus 领域错误到 HTTP 状态码；message 为空时使用错误本身的文本
var errorStatus = []errorMapping{
	{library.ErrNotFound, http.StatusNotFound, ""},
	{library.ErrForbidden, http.StatusForbidden, ""},
	{library.ErrEmptyFile, http.StatusBadRequest, ""},
	{library.ErrFileTooLarge, http.StatusRequestEntityTooLarge, ""},
	{library.ErrUnsupportedType, http.StatusUnsupportedMediaType, ""},
	{library.ErrBusy, http.StatusServiceUnavailable, ""},
	{library.ErrInvalidField, http.StatusBadRequest, ""},

	{playlist.ErrNotFound, http.StatusNotFound, ""},
	{playlist.ErrForbidden, http.StatusForbidden, ""},
	{playlist.ErrInvalidOrder, http.StatusBadRequest, ""},
	{playlist.ErrInvalidName, http.StatusBadRequest, ""},
	{playlist.ErrUnsupportedImage, http.StatusUnsupportedMediaType, ""},
	{playlist.ErrImageTooLarge, http.StatusRequestEntityTooLarge, ""},
	{playlist.ErrForeignCover, http.StatusBadRequest, ""},

	{player.ErrInvalidStatus, http.StatusBadRequest, ""},
	{player.ErrInvalidMode, http.StatusBadRequest, ""},
	{player.ErrMissingPayload, http.StatusBadRequest, ""},
	{player.ErrUnknownAction, http.StatusNotFound, ""},

	{recommend.ErrNoSongs, http.StatusBadRequest, ""},
	{recommend.ErrNotConfigured, http.StatusInternalServerError, "API key not configured. Please set GOOGLE_AI_API_KEY or OPENAI_API_KEY"},
	{recommend.ErrNoRecommendations, http.StatusInternalServerError, "Could not generate recommendations. Please try again."},
	{recommend.ErrRateLimited, http.StatusTooManyRequests, ""},

	{storage.ErrObjectNotFound, http.StatusNotFound, "File not found"},

	{auth.ErrUserNotFound, http.StatusUnauthorized, ""},
	{auth.ErrWrongPassword, http.StatusUnauthorized, ""},
	{auth.ErrInvalidToken, http.StatusUnauthorized, ""},
	{auth.ErrRequiresRecentLogin, http.StatusUnauthorized, ""},
	{auth.ErrEmailInUse, http.StatusConflict, ""},
	{auth.ErrAccountExistsDifferent, http.StatusConflict, ""},
	{auth.ErrProviderAlreadyLinked, http.StatusConflict, ""},
	{auth.ErrCredentialAlreadyInUse, http.StatusConflict, ""},
	{auth.ErrProviderNotConfigured, http.StatusNotImplemented, ""},
	{auth.ErrNetworkRequestFailed, http.StatusBadGateway, ""},
	{auth.ErrTooManyRequests, http.StatusTooManyRequests, ""},
}

// writeError 把领域错误映射为 HTTP 状态码和 {"error": "..."} 响应体
func writeError(w http.ResponseWriter, err error) {
	for _, m := range errorStatus {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = auth.FriendlyMessage(m.err, m.err.Error())
		}
		writeErrorMessage(w, m.status, msg)
		return
	}

	// 其余认证错误都是请求本身的问题
	var ae *auth.Error
	if errors.As(err, &ae) {
		writeErrorMessage(w, http.StatusBadRequest, ae.Message())
		return
	}

	logger.Error("[HTTP] 请求处理失败", logger.ErrorField(err))
	writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON 解析请求体，错误时已写入 400 响应
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// currentUser 取出已认证的用户ID，失败时已写入 401 响应
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}
