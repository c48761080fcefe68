package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/api/handler"
	"github.com/roneel47/UniTask-Pro/internal/api/router"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	"github.com/roneel47/UniTask-Pro/internal/service"
	"github.com/roneel47/UniTask-Pro/pkg/database"
	"github.com/roneel47/UniTask-Pro/pkg/jwt"
	applogger "github.com/roneel47/UniTask-Pro/pkg/logger"
	"github.com/roneel47/UniTask-Pro/pkg/redis"
)

const (
	bootTimeout     = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Getenv("UNITASK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("UniTask Pro 启动失败", zap.Error(err))
	}
}

// run 组装依赖并阻塞直到收到退出信号
func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("UniTask Pro 启动中",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("upload_dir", cfg.Upload.Dir),
	)

	db, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(db, logger)

	// Redis 不可用时降级：无登出黑名单、无登录限流
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 不可用，降级运行", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	jwtMgr := jwt.NewManager(&cfg.Auth)
	svc := service.NewService(cfg, repository.NewRepository(db), jwtMgr, rdb, logger)

	if err := bootstrap(cfg, svc); err != nil {
		return err
	}

	engine := router.Setup(cfg, handler.NewHandler(cfg, svc), jwtMgr, rdb, db, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 作业上传与 xlsx 导出
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP 服务器异常: %w", err)
	case sig := <-quit:
		logger.Info("收到关闭信号，开始优雅关闭", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务器已关闭")
	return nil
}

// openStorage 连接 PostgreSQL 并执行嵌入式迁移
func openStorage(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return db, nil
}

func closeStorage(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}
}

// bootstrap 首次启动准备：主管理员账号与作业上传目录
func bootstrap(cfg *config.Config, svc *service.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), bootTimeout)
	defer cancel()

	if err := svc.User.EnsureMasterAdmin(ctx); err != nil {
		return fmt.Errorf("初始化主管理员失败: %w", err)
	}
	if err := os.MkdirAll(cfg.Upload.Dir, 0o750); err != nil {
		return fmt.Errorf("创建上传目录 %s 失败: %w", cfg.Upload.Dir, err)
	}
	return nil
}
