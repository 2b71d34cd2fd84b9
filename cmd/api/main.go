package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"azebot/internal/config"
	"azebot/internal/gateway"
	"azebot/internal/grpc_server"
	"azebot/internal/handler"
	"azebot/internal/logging"
	"azebot/internal/repository"
	"azebot/internal/service"
	"azebot/pkg/db"

	"github.com/gin-gonic/gin"
)

type stores struct {
	articles     repository.ArticleRepository
	transactions repository.TransactionRepository
	payments     repository.PaymentRepository
	crediter     repository.Crediter
	probe        func(ctx context.Context) error
	close        func()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		(&config.Config{}).OutputUsage()
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	gw := buildGateway(cfg, logger)

	resolver := service.NewStatusResolver(st.transactions, gw, logger)
	reconciler := service.NewAccessReconciler(st.articles, st.transactions, st.crediter, resolver, logger)
	catalog := service.NewCatalogService(st.articles, st.transactions, st.payments, cfg.Currency, logger)
	payments := service.NewPaymentService(st.articles, st.transactions, gw, service.PaymentConfig{
		Currency:   cfg.Currency,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	}, logger)

	if cfg.SeedFile != "" {
		articles, err := repository.LoadSeed(cfg.SeedFile)
		if err != nil {
			logger.Error("failed to read seed file", "file", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		if _, err := catalog.ImportArticles(ctx, articles); err != nil {
			logger.Error("failed to import seed articles", "error", err)
			os.Exit(1)
		}
	}

	defer reconciler.Observe("", func(ev service.UnlockEvent) {
		logger.Info("payment credited", "transactionId", ev.TransactionID, "articleId", ev.ArticleID,
			"userId", ev.UserID, "amount", ev.Amount, "currency", ev.Currency, "method", ev.Method)
	})()

	if cfg.SweeperEnabled {
		sweeper := service.NewSweeper(service.SweeperConfig{
			Schedule:   cfg.SweeperSchedule,
			MinAge:     cfg.SweeperMinAge,
			CreatedTTL: cfg.SweeperCreatedTTL,
			BatchSize:  cfg.SweeperBatchSize,
		}, reconciler, st.transactions, logger)
		if err := sweeper.Start(); err != nil {
			logger.Error("failed to start sweeper", "error", err)
			os.Exit(1)
		}
		defer sweeper.Stop()
	}

	errCh := make(chan error, 2)

	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			logger.Error("failed to listen for grpc", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		healthSrv := grpc_server.NewHealthServer(st.probe, logger)
		go healthSrv.Watch(ctx, 10*time.Second)
		go func() { errCh <- healthSrv.Serve(lis) }()
		defer healthSrv.Stop()
	}

	router := handler.NewRouter(handler.Services{
		Payments:   payments,
		Resolver:   resolver,
		Reconciler: reconciler,
		Catalog:    catalog,
	}, handler.RouterConfig{
		JWTSecret:       cfg.JWTSecret,
		AuthRequired:    cfg.AuthRequired,
		CreateRateRPS:   cfg.CreateRateRPS,
		CreateRateBurst: cfg.CreateRateBurst,
	}, st.probe, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "addr", srv.Addr, "tls", cfg.TLSCertFile != "",
			"gatewayMode", cfg.GatewayMode, "persister", cfg.PersisterTypeName)
		var err error
		if cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("server stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.PersisterType {
	case config.PersisterTypePostgresql:
		pool, err := db.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repository.CreateTables(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgresql")
		return &stores{
			articles:     repository.NewArticleRepository(pool),
			transactions: repository.NewTransactionRepository(pool),
			payments:     repository.NewPaymentRepository(pool),
			crediter:     repository.NewCrediter(pool),
			probe:        pool.Ping,
			close:        pool.Close,
		}, nil
	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{
			articles:     mem,
			transactions: mem,
			payments:     mem,
			crediter:     mem,
			probe:        func(context.Context) error { return nil },
			close:        func() {},
		}, nil
	}
}

func buildGateway(cfg *config.Config, logger *slog.Logger) gateway.Gateway {
	if cfg.GatewayMode == config.GatewayModeFake {
		logger.Warn("using fake payment gateway, every checkout is approved")
		fake := gateway.NewFake()
		fake.AutoApprove = true
		return fake
	}
	return gateway.NewClient(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
	}, logger)
}
