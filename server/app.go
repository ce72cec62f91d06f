package server

import (
	"context"
	"fmt"

	"Tunevault/cache"
	"Tunevault/config"
	"Tunevault/core/auth"
	"Tunevault/core/index"
	"Tunevault/core/library"
	"Tunevault/core/metadata"
	"Tunevault/core/player"
	"Tunevault/core/playlist"
	"Tunevault/core/recommend"
	"Tunevault/db"
	"Tunevault/logger"
	"Tunevault/model"
	"Tunevault/repository"
	"Tunevault/storage"
)

// App 连接好的基础设施和业务服务，HTTP 服务和命令行工具共用
type App struct {
	Config   *config.Config
	Store    *storage.MinioStore
	Music    repository.MusicRepository
	Services Services
}

// NewApp 连接 MySQL、Redis、MinIO 并组装所有服务
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := db.ConnectDB(cfg); err != nil {
		return nil, err
	}
	if err := db.InitDB(); err != nil {
		db.CloseDB()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		db.CloseDB()
		return nil, err
	}
	if err := db.AutoMigrateModels(&model.Playlist{}); err != nil {
		closeDatabases()
		return nil, fmt.Errorf("failed to migrate playlists: %w", err)
	}

	if err := db.ConnectRedis(cfg); err != nil {
		closeDatabases()
		return nil, err
	}
	logger.Info("Successfully connected to Redis")

	store, err := storage.InitMinio(ctx, cfg)
	if err != nil {
		closeDatabases()
		db.CloseRedis()
		return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}

	musicRepo := repository.NewMySQLMusicRepository(db.DB)
	indexRepo := repository.NewMySQLIndexRepository(db.DB)
	userRepo := repository.NewMySQLUserRepository(db.DB)
	playlistRepo := repository.NewGormPlaylistRepository(db.GormDB)

	libraryCache := cache.NewLibraryCache(db.RedisClient, cfg.LibraryCacheTTL)
	playerCache := cache.NewPlayerCache(db.RedisClient, cfg.PlayerStateTTL)
	recommendCache := cache.NewRecommendCache(db.RedisClient, cfg.RecommendCacheTTL)
	tokens := cache.NewTokenStore(db.RedisClient)

	indexSvc := index.NewService(indexRepo)
	hub := player.NewHub()
	go hub.Run()

	app := &App{
		Config: cfg,
		Store:  store,
		Music:  musicRepo,
		Services: Services{
			Auth:      auth.NewService(cfg, userRepo, tokens, auth.NewProviders(cfg.OAuthProviders)),
			Library:   library.NewService(musicRepo, indexSvc, store, libraryCache, metadata.NewFFprobe(cfg.FFprobePath), library.OptionsFromConfig(cfg)),
			Index:     indexSvc,
			Playlists: playlist.NewService(playlistRepo, musicRepo, store, cfg.CoverMaxBytes),
			Players:   player.NewManager(playerCache, hub.PublishState),
			Hub:       hub,
			Recommend: recommend.NewService(recommend.NewGeneratorFromConfig(cfg), recommendCache, cfg.RecommendRatePerMinute, cfg.RecommendTimeout),
			Store:     store,
		},
	}
	return app, nil
}

// Close 保存播放器状态并断开所有连接
func (a *App) Close() {
	a.Services.Players.Close()
	a.Services.Hub.Stop()
	if err := db.CloseRedis(); err != nil {
		logger.Warn("关闭 Redis 连接失败", logger.ErrorField(err))
	}
	closeDatabases()
}

func closeDatabases() {
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("关闭 GORM 连接失败", logger.ErrorField(err))
	}
	if err := db.CloseDB(); err != nil {
		logger.Warn("关闭数据库连接失败", logger.ErrorField(err))
	}
}
