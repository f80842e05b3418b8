// @title LMS 后端 API
// @version 1.0
// @description 学习平台的进度与结课后端服务。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"lms_backend/internal/app"
	"lms_backend/internal/config"
	"lms_backend/pkg/configwatcher"
	"lms_backend/pkg/logger"
	"log"
	"path/filepath"

	"go.uber.org/zap"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	// 配置文件热更新
	go func() {
		if err := configwatcher.WatchConfig(filepath.Join("configs", "config.yaml"), application.ReloadConfig); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()

	application.Run()
}
