package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/tray-verify/internal/auth"
	"github.com/example/tray-verify/internal/detector"
	"github.com/example/tray-verify/internal/grpcclient"
	"github.com/example/tray-verify/internal/handlers"
	"github.com/example/tray-verify/internal/logging"
	"github.com/example/tray-verify/internal/overlay"
	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/repository"
	"github.com/example/tray-verify/internal/session"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	db := initDatabase(ctx, logger)

	logRepo := repository.NewSessionLogRepository(db, logger)
	if err := logRepo.AutoMigrate(ctx); err != nil {
		logger.Fatal("session log auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, logger)

	profiles := profile.NewRepository(db, profile.NewRedisCache(redisClient), logger)
	if err := profiles.AutoMigrate(ctx); err != nil {
		logger.Fatal("profile auto migrate failed", zap.Error(err))
	}

	visionRigAddr := getEnv("VISION_RIG_ADDR", "vision-rig:50051")
	stationID := getEnv("STATION_ID", "station-1")
	rig, conn, err := grpcclient.DialVisionRig(ctx, visionRigAddr, stationID, logger)
	if err != nil {
		logger.Fatal("failed to connect to vision rig", zap.Error(err))
	}
	defer conn.Close()

	detectorCfg := detector.DefaultConfig()
	detectorCfg.OversizedRatio = getEnvFloat("OVERSIZED_RATIO", detectorCfg.OversizedRatio)
	detectorCfg.EdgeMargin = getEnvFloat("EDGE_MARGIN", detectorCfg.EdgeMargin)
	det := detector.New(rig, detectorCfg, logger)

	sessionCfg := session.DefaultConfig()
	sessionCfg.AcquisitionRetryLimit = getEnvInt("ACQUISITION_RETRY_LIMIT", sessionCfg.AcquisitionRetryLimit)
	sessionCfg.MinFocusScore = getEnvFloat("MIN_FOCUS_SCORE", sessionCfg.MinFocusScore)
	sessionCfg.Verdict.ConfirmThreshold = getEnvFloat("CONFIRM_THRESHOLD", sessionCfg.Verdict.ConfirmThreshold)
	sessionCfg.Verdict.BorderlineThreshold = getEnvFloat("BORDERLINE_THRESHOLD", sessionCfg.Verdict.BorderlineThreshold)

	renderer := overlay.NewHTTPRenderer(getEnv("OVERLAY_URL", "http://projector-daemon:9090/render"), logger)

	mgr := session.NewManager(sessionCfg, profiles, rig, det, renderer, logRepo, logger)

	r := gin.Default()

	jwtSecret := getEnv("JWT_SECRET", "dev-secret")
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	authMiddleware := auth.JWTMiddleware(jwtSecret, jwtAudience)

	handlers.RegisterRoutes(r, mgr, authMiddleware)

	server := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	logger.Info("tray verification API listening", zap.String("addr", ":8080"))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, zapLogger *zap.Logger) *gorm.DB {
	dsn := getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=trayverify port=5432 sslmode=disable")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Info)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, zapLogger *zap.Logger) *redis.Client {
	addr := getEnv("REDIS_ADDR", "redis:6379")
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
