package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Tunevault/config"
	"Tunevault/logger"

	"github.com/gorilla/mux"
)

// corsMiddleware 允许跨域访问 API 和媒体文件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter 注册所有路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	// 预检请求需要匹配到路由，中间件才会执行
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	api := router.PathPrefix("/api").Subrouter()

	// 认证
	api.HandleFunc("/auth/signup", h.SignUpHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", h.SignInHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset", h.ResetPasswordHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset/confirm", h.ConfirmResetHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", h.AuthMiddleware(h.SignOutHandler)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.AuthMiddleware(h.MeHandler)).Methods(http.MethodGet)
	api.HandleFunc("/auth/providers", h.ProvidersHandler).Methods(http.MethodGet)
	api.HandleFunc("/auth/providers/{provider}/start", h.ProviderStartHandler).Methods(http.MethodGet)
	api.HandleFunc("/auth/providers/{provider}/callback", h.ProviderCallbackHandler).Methods(http.MethodGet)
	api.HandleFunc("/auth/link/{provider}", h.AuthMiddleware(h.LinkProviderHandler)).Methods(http.MethodPost)
	api.HandleFunc("/auth/link/{provider}", h.AuthMiddleware(h.UnlinkProviderHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/auth/links", h.AuthMiddleware(h.LinksHandler)).Methods(http.MethodGet)

	// 曲库
	api.HandleFunc("/music", h.AuthMiddleware(h.UploadMusicHandler)).Methods(http.MethodPost)
	api.HandleFunc("/music", h.AuthMiddleware(h.ListMusicHandler)).Methods(http.MethodGet)
	api.HandleFunc("/music/values/{field}", h.AuthMiddleware(h.UniqueValuesHandler)).Methods(http.MethodGet)
	api.HandleFunc("/music/{id}", h.AuthMiddleware(h.GetMusicHandler)).Methods(http.MethodGet)
	api.HandleFunc("/music/{id}", h.AuthMiddleware(h.UpdateMusicHandler)).Methods(http.MethodPatch)
	api.HandleFunc("/music/{id}", h.AuthMiddleware(h.DeleteMusicHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/index/values/{field}", h.AuthMiddleware(h.IndexValuesHandler)).Methods(http.MethodGet)

	// 歌单，固定路径要先于 {id} 注册
	api.HandleFunc("/playlists", h.AuthMiddleware(h.CreatePlaylistHandler)).Methods(http.MethodPost)
	api.HandleFunc("/playlists", h.AuthMiddleware(h.ListPlaylistsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists/public", h.ListPublicPlaylistsHandler).Methods(http.MethodGet)
	api.HandleFunc("/playlists/cover", h.AuthMiddleware(h.UploadPlaylistCoverHandler)).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}", h.AuthMiddleware(h.GetPlaylistHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}", h.AuthMiddleware(h.UpdatePlaylistHandler)).Methods(http.MethodPatch)
	api.HandleFunc("/playlists/{id}", h.AuthMiddleware(h.DeletePlaylistHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{id}/cover", h.AuthMiddleware(h.UploadPlaylistCoverHandler)).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}/songs", h.AuthMiddleware(h.PlaylistSongsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}/songs", h.AuthMiddleware(h.AddPlaylistSongHandler)).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}/songs/{songId}", h.AuthMiddleware(h.RemovePlaylistSongHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{id}/order", h.AuthMiddleware(h.ReorderPlaylistHandler)).Methods(http.MethodPut)

	// 播放器
	api.HandleFunc("/player", h.AuthMiddleware(h.PlayerStateHandler)).Methods(http.MethodGet)
	api.HandleFunc("/player/{action}", h.AuthMiddleware(h.PlayerActionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/ws/player", h.AuthMiddleware(h.PlayerWSHandler)).Methods(http.MethodGet)

	// AI 推荐
	api.HandleFunc("/recommendations", h.AuthMiddleware(h.RecommendHandler)).Methods(http.MethodPost)

	// 对象存储中的音频和封面
	router.PathPrefix("/media/").Handler(NewMediaHandler(h.store)).Methods(http.MethodGet, http.MethodHead)

	// 前端
	if h.cfg.WebAppDir != "" {
		router.PathPrefix("/").Handler(spaHandler{dir: h.cfg.WebAppDir})
	}
	return router
}

// Start initializes and starts the HTTP server.
func Start(cfg *config.Config) error {
	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := NewAPIHandler(cfg, app.Services)

	// 设置服务器超时，上传大文件需要和上传超时保持一致
	ioTimeout := 30 * time.Second
	if cfg.UploadTimeout > ioTimeout {
		ioTimeout = cfg.UploadTimeout
	}
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      NewRouter(handler),
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		logger.Info("Access the UI", logger.String("url", cfg.PublicBaseURL+"/"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待中断信号或启动失败
	select {
	case <-stop:
	case err, ok := <-errCh:
		if ok {
			logger.Error("Failed to start server", logger.ErrorField(err))
			return err
		}
	}
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
		return err
	}

	logger.Info("Server stopped")
	return nil
}
