package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pharmapos/m/internal/api"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/config"
	"pharmapos/m/internal/database"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/report"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/store"
	"pharmapos/m/internal/store/memory"
	"pharmapos/m/internal/store/sqlstore"
)

type backend interface {
	store.Store
	store.UserStore
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
	}

	s, closeStore := openStore(cfg, logger)
	defer closeStore()

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		logger.Warn("unknown REPORT_TIMEZONE, using UTC", zap.String("timezone", cfg.ReportTimezone), zap.Error(err))
		loc = time.UTC
	}

	products := catalog.New(s, logger.Named("catalog"))
	if cfg.CatalogCSV != "" {
		rep, err := products.ImportFile(context.Background(), cfg.CatalogCSV)
		if err != nil {
			logger.Error("catalog import", zap.String("path", cfg.CatalogCSV), zap.Error(err))
		}
		for _, skipped := range rep.Skipped {
			logger.Warn("catalog row skipped", zap.Int("line", skipped.Line), zap.String("reason", skipped.Reason))
		}
	}

	engine := sales.New(s,
		sales.WithLogger(logger.Named("sales")),
		sales.WithNumberAttempts(cfg.NumberAttempts),
		sales.WithStockAttempts(cfg.StockAttempts),
		sales.WithReceiptProfile(cfg.ReceiptProfile),
	)

	handler := api.New(api.Deps{
		Store:   s,
		Users:   s,
		Engine:  engine,
		Catalog: products,
		Reports: report.New(s, loc),
		Profile: cfg.ReceiptProfile,
		Secret:  cfg.Secret,
		Origins: cfg.CORSOrigins,
		Log:     logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("PharmaPOS server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func openStore(cfg config.Config, logger *zap.Logger) (backend, func()) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("using in-memory store; records are lost on restart")
		return memory.New(), func() {}
	}

	driver := database.DriverSQLite
	if cfg.StoreBackend == config.BackendPostgres {
		driver = database.DriverPostgres
	}
	db, err := database.Connect(driver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect database", zap.String("driver", driver), zap.Error(err))
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		logger.Fatal("run migrations", zap.Error(err))
	}
	return sqlstore.New(db), func() { db.Close() }
}
