package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniehj/arctanwines-crm-sub000/internal/adapter/handler"
	"github.com/daniehj/arctanwines-crm-sub000/internal/adapter/rates"
	"github.com/daniehj/arctanwines-crm-sub000/internal/adapter/storage"
	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/core/service"
)

const (
	defaultHTTPPort     = ":8080"
	defaultMySQLDSN     = "root:root@tcp(localhost:3306)/arctanwines?parseTime=true"
	defaultRedisAddr    = "localhost:6379"
	workerCount         = 10
	eventBuffer         = 10000
	reservationSweepGap = 30 * time.Second
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", envOr("MYSQL_DSN", defaultMySQLDSN))
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", defaultRedisAddr),
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Adapters
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	rateProvider := rates.NewStaticProvider()
	seedRates(rateProvider, logger)

	// Engine
	coordinator := service.NewReservationCoordinator(eventBuffer, logger)
	engine := service.NewLotEngine(mysqlAdapter, redisAdapter, coordinator, logger)
	engine.StartWorkers(workerCount)
	logger.Info("started persistence workers", zap.Int("count", workerCount))

	// Expired-reservation sweep
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(reservationSweepGap)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := engine.SweepExpired(now); n > 0 {
					logger.Info("swept expired reservations", zap.Int("count", n))
				}
			}
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(engine, rateProvider, redisAdapter, logger)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    envOr("HTTP_PORT", defaultHTTPPort),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	cancel()
	<-sweepDone

	engine.Stop()
	logger.Info("workers stopped")

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}

// seedRates loads today's import rates from the environment so FinalizeLot
// works out of the box. Production deployments replace this with a rate feed.
func seedRates(provider *rates.StaticProvider, logger *zap.Logger) {
	today := time.Now()
	for _, pair := range []struct {
		env  string
		from domain.Currency
		to   domain.Currency
	}{
		{"EUR_NOK_RATE", domain.EUR, domain.NOK},
		{"USD_NOK_RATE", domain.USD, domain.NOK},
	} {
		raw := os.Getenv(pair.env)
		if raw == "" {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warn("invalid rate in environment", zap.String("var", pair.env), zap.Error(err))
			continue
		}
		provider.SetRate(pair.from, pair.to, today, rate)
		logger.Info("seeded exchange rate",
			zap.String("pair", string(pair.from)+"/"+string(pair.to)),
			zap.String("rate", rate.String()))
	}
}
