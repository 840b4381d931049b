// Package main запускает HTTP-сервер сервиса заказов поставщикам.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/supplier-orders/internal/calendar"
	"github.com/mmeshcher/supplier-orders/internal/config"
	"github.com/mmeshcher/supplier-orders/internal/directory"
	"github.com/mmeshcher/supplier-orders/internal/handler"
	"github.com/mmeshcher/supplier-orders/internal/ledger"
	"github.com/mmeshcher/supplier-orders/internal/middleware"
	"github.com/mmeshcher/supplier-orders/internal/repository"
	"github.com/mmeshcher/supplier-orders/internal/schedule"
	"github.com/mmeshcher/supplier-orders/internal/service"
)

// store объединяет хранилище журнала и локальный справочник поставщиков.
type store interface {
	ledger.Store
	service.Directory
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	calendar.SetLocation(loc)

	lang, err := cfg.Language()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo store
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer pg.Close()
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is not set, orders are kept in memory")
		repo = repository.NewMemoryRepository()
	}

	var dir service.Directory = repo
	if cfg.DirectoryAddress != "" {
		dir = directory.NewClient(cfg.DirectoryAddress)
	}

	hub := ledger.NewHub(repo, logger.Named("hub"))
	defer hub.Close()

	led := ledger.New(repo, hub, logger.Named("ledger"), ledger.Config{MaxAttempts: cfg.LedgerMaxRetries})
	builder := schedule.NewBuilder(logger.Named("schedule"), lang)
	svc := service.NewService(dir, led, builder, logger.Named("service"), service.Config{})

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter(cfg.AllowedOrigins())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запросы наследуют контекст сервера: потоки SSE завершаются при остановке.
	server := &http.Server{
		Addr:        cfg.RunAddress,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Фоновая очистка кэша справочника
	g.Go(func() error {
		svc.StartCacheEviction(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting supplier orders server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		hub.Close()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
