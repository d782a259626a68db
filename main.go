package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"practicehub/api"
	"practicehub/config"
	"practicehub/middleware"
	"practicehub/models"
	"practicehub/services"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadConfig()

	zlog, err := config.NewLogger()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	db, err := openDatabase()
	if err != nil {
		zlog.Fatal("connect database", zap.String("driver", config.AppConfig.DBDriver), zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("database pool", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(config.AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(config.AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Consultation{},
		&models.GroupActivity{},
		&models.GroupActivityParticipant{},
	); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}

	// Redis backs the change feed, caches, presence and rate limiting.
	// Without it only the memory change feed can run.
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
		PoolSize: config.AppConfig.RedisPoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		if config.AppConfig.RealtimeBackend == "redis" {
			zlog.Fatal("connect redis", zap.String("addr", config.AppConfig.RedisAddr), zap.Error(err))
		}
		zlog.Warn("redis unavailable, running without cache and presence", zap.Error(err))
		rdb.Close()
		rdb = nil
	} else {
		zlog.Info("redis connected", zap.String("addr", config.AppConfig.RedisAddr))
	}

	var feed services.ChangeFeed
	switch config.AppConfig.RealtimeBackend {
	case "memory":
		feed = services.NewMemoryChangeFeed()
	default:
		feed = services.NewRedisChangeFeed(rdb, config.AppConfig.RealtimeChannelPrefix, zlog.Named("feed"))
	}

	cacheTTL := time.Duration(config.AppConfig.CacheExpiration) * time.Second
	userService := services.NewUserService(db, rdb, cacheTTL, zlog.Named("users"))
	referenceService := services.NewReferenceService(db, rdb, userService, cacheTTL, zlog.Named("references"))
	activityService := services.NewActivityService(db, feed, zlog.Named("activities"))
	syncWorker := services.NewSyncWorker(activityService, zlog.Named("sync"))

	// Kafka is optional; without it sync requests run inline.
	var syncer services.AutoSyncer = services.InlineAutoSyncer{Worker: syncWorker}
	kafkaService, err := services.NewKafkaService(zlog.Named("kafka"))
	if err != nil {
		zlog.Warn("kafka unavailable, auto-sync runs inline", zap.Error(err))
		kafkaService = nil
	} else if err := syncWorker.Start(kafkaService, config.AppConfig.KafkaSyncTopic); err != nil {
		zlog.Warn("start sync worker, auto-sync runs inline", zap.Error(err))
	} else {
		syncer = services.NewKafkaAutoSyncer(kafkaService, config.AppConfig.KafkaSyncTopic)
	}

	wsManager := services.NewWebSocketManager(rdb, config.AppConfig.MaxConnections, zlog.Named("ws"))
	go wsManager.Run()

	boards := services.NewBoardManager(services.BoardDeps{
		Repository:           activityService,
		Feed:                 feed,
		Clients:              referenceService,
		References:           referenceService,
		Syncer:               syncer,
		Notifier:             services.NewWebSocketNotifier(wsManager, zlog.Named("notify")),
		Frames:               wsManager,
		Log:                  zlog.Named("boards"),
		MaxSeriesOccurrences: config.AppConfig.MaxSeriesOccurrences,
	})

	if config.AppConfig.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RateLimiter(rdb))
	r.Use(middleware.JWTAuth())

	api.RegisterRoutes(r, api.Services{
		Users:      userService,
		References: referenceService,
		Boards:     boards,
		WSManager:  wsManager,
		Kafka:      kafkaService,
		Log:        zlog,
	})

	srv := services.StartServer(r, config.AppConfig.Port, zlog)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("forced shutdown", zap.Error(err))
	}

	if err := boards.CloseAll(); err != nil {
		zlog.Warn("close boards", zap.Error(err))
	}
	wsManager.Stop()
	if kafkaService != nil {
		if err := kafkaService.Close(); err != nil {
			zlog.Warn("close kafka", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}

	zlog.Info("server stopped")
}

// openDatabase opens the configured driver; sqlite is meant for local runs
func openDatabase() (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.AppConfig.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(config.AppConfig.DBConnectionString)
	default:
		dialector = mysql.Open(config.AppConfig.DBConnectionString)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
}
