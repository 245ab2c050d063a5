// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/favhub/internal/config"
	"github.com/hitoshi/favhub/internal/connector"
	"github.com/hitoshi/favhub/internal/database"
	"github.com/hitoshi/favhub/internal/handler"
	"github.com/hitoshi/favhub/internal/logger"
	"github.com/hitoshi/favhub/internal/metrics"
	"github.com/hitoshi/favhub/internal/repository"
	"github.com/hitoshi/favhub/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、アカウント管理APIとメトリクスエンドポイントを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	accountRepo := repository.NewPostgresAccountRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteRepo(db)

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	router := handler.NewRouter(&handler.RouterDeps{
		AccountStore:    accountRepo,
		FavoriteCounter: favoriteRepo,
		Logger:          slog.Default(),
		Gatherer:        registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は収集ワーカーモードで起動する。
// DB接続を開き、コネクタとポーリングスケジューラをワイヤリングして起動する。
// メトリクスはワーカー自身の/metricsエンドポイントで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	accountRepo := repository.NewPostgresAccountRepo(db)
	favoriteRepo := repository.NewPostgresFavoriteRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// コネクタの初期化
	httpClient := &http.Client{Timeout: cfg.PollTimeout}
	factory := connector.NewFactory(
		connector.NewGithubConnector(httpClient, logger.ForConnector(slog.Default(), "github")),
		connector.NewTwitterConnector(httpClient, logger.ForConnector(slog.Default(), "twitter"),
			cfg.TwitterConsumerKey, cfg.TwitterConsumerSecret),
		connector.NewStackoverflowConnector(httpClient, logger.ForConnector(slog.Default(), "stackoverflow"),
			cfg.StackoverflowClientKey),
	)

	// ポーラーの初期化
	poller := poll.NewPoller(
		accountRepo, favoriteRepo, factory, collector, slog.Default(),
		cfg.PollTimeout,
		poll.Delays{
			Initial:          cfg.InitialDelay,
			Normal:           cfg.NormalDelay,
			RateLimited:      cfg.RateLimitDelay,
			ErrorBackoffBase: cfg.ErrorBackoffBase,
			ErrorBackoffMax:  cfg.ErrorBackoffMax,
		},
		cfg.NetworkRatePerSec, cfg.NetworkBurst,
	)

	scheduler := poll.NewScheduler(accountRepo, poller, slog.Default(), cfg.PollMaxConcurrent)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// メトリクスエンドポイントをバックグラウンドで公開
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	slog.Info("worker starting",
		slog.Duration("poll_tick", cfg.PollTick),
		slog.Int("max_concurrent", cfg.PollMaxConcurrent),
	)

	// ポーリングスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.PollTick)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
