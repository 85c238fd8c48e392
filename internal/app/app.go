// Package app はサブコマンドの解析と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/hikbridge/internal/audit"
	"github.com/hitoshi/hikbridge/internal/config"
	"github.com/hitoshi/hikbridge/internal/database"
	"github.com/hitoshi/hikbridge/internal/daterange"
	"github.com/hitoshi/hikbridge/internal/handler"
	"github.com/hitoshi/hikbridge/internal/hikcentral"
	"github.com/hitoshi/hikbridge/internal/identity"
	"github.com/hitoshi/hikbridge/internal/logger"
	"github.com/hitoshi/hikbridge/internal/metrics"
	"github.com/hitoshi/hikbridge/internal/middleware"
	"github.com/hitoshi/hikbridge/internal/qrdecode"
	"github.com/hitoshi/hikbridge/internal/repository"
	"github.com/hitoshi/hikbridge/internal/resident"
	"github.com/hitoshi/hikbridge/internal/security"
	"github.com/hitoshi/hikbridge/internal/settings"
	"github.com/hitoshi/hikbridge/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
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
	cmd, ok := ParseCommand(args)
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", cmd, usage())
	}

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
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	case CommandProbe:
		return runProbe(cfg)
	default:
		return runServe(cfg)
	}
}

// dbConnectTimeout は起動時のDB疎通確認のタイムアウト。
const dbConnectTimeout = 5 * time.Second

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Verify(context.Background(), db, dbConnectTimeout); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established")
	return db, nil
}

// components はserve・probeで共有するドメインコンポーネント。
type components struct {
	settings *settings.Store
	audit    *audit.Recorder
	vendor   *hikcentral.Client
	resident *resident.Service
	issuer   *identity.Issuer
	registry *prometheus.Registry
}

// buildComponents はリポジトリからサービス層までを組み立てる。
// 起動時設定の値を app_config に未登録のキーだけ投入する。
func buildComponents(ctx context.Context, db *sql.DB, cfg *config.Config) (*components, error) {
	log := slog.Default()

	// 1. リポジトリの初期化
	residentRepo := repository.NewPostgresResidentRepo(db)
	settingRepo := repository.NewPostgresSettingRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	// 2. 監査・設定ストア
	recorder := audit.NewRecorder(auditRepo, log)
	store := settings.NewStore(settingRepo, cfg.SettingsCacheTTL, recorder, log)
	if err := store.Seed(ctx, settings.Defaults(cfg)); err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(registry)

	// 4. HikCentralクライアントと補助サービス
	vendor := hikcentral.NewClient(store, cfg.VendorTimeout, mc, log)
	normalizer := daterange.New(cfg.MaxResidentYears, time.Local)
	sanitizer := security.NewTextSanitizer()
	decoder := qrdecode.NewZXingDecoder()

	// 5. ドメインサービス
	residentService := resident.NewService(
		residentRepo, vendor, store, normalizer, sanitizer, recorder, mc, log,
	)
	issuer := identity.NewIssuer(
		residentRepo, vendor, decoder, normalizer, sanitizer, recorder, mc, log,
	)

	return &components{
		settings: store,
		audit:    recorder,
		vendor:   vendor,
		resident: residentService,
		issuer:   issuer,
		registry: registry,
	}, nil
}

// usage はサブコマンドの一覧を返す。
func usage() string {
	var b strings.Builder
	b.WriteString("usage: hikbridge <command>\n\ncommands:\n")
	for _, c := range Commands() {
		fmt.Fprintf(&b, "  %-12s %s\n", c, c.Description())
	}
	return b.String()
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildComponents(context.Background(), db, cfg)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:          cfg.RateLimitWindow,
		MaxRequests:     cfg.RateLimitMaxRequests,
		CleanupInterval: middleware.DefaultRateLimiterConfig().CleanupInterval,
	})
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AdminToken:        cfg.AdminAPIToken,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(c.registry),

		ResidentService: c.resident,

		IdentityService: c.issuer,
		DateParser:      daterange.New(cfg.MaxResidentYears, time.Local),
		VersionProber:   c.vendor,

		SettingsService: c.settings,
		EventLister:     c.audit,
	}

	router := handler.NewRouter(deps)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runCleanup は保持期間を超過した監査イベントを削除する。
func runCleanup(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(db, cfg.AuditRetentionDays, slog.Default())
	if _, err := job.Run(context.Background()); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runProbe はHikCentralのバージョンAPIを呼び出し、接続できるかを確認する。
// 接続できない場合はエラーを返し、プロセスは非ゼロで終了する。
func runProbe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.VendorTimeout+5*time.Second)
	defer cancel()

	c, err := buildComponents(ctx, db, cfg)
	if err != nil {
		return err
	}

	version, err := c.vendor.Version(ctx)
	if err != nil {
		return fmt.Errorf("hikcentral probe failed: %w", hikcentral.ToAPIError(err))
	}

	slog.Info("hikcentral reachable", slog.String("version", string(version)))
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

// maskDatabaseURL はデータベースURLのパスワードを伏せ、クエリパラメータを除去する。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
