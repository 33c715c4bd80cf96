package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/angelo-gelato/loyalty-backend/api"
	"github.com/angelo-gelato/loyalty-backend/internal/account"
	"github.com/angelo-gelato/loyalty-backend/internal/catalog"
	"github.com/angelo-gelato/loyalty-backend/internal/media"
	"github.com/angelo-gelato/loyalty-backend/internal/order"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/backup"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/config"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/database"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/health"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/logging"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/ratelimit"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/shutdown"
	"github.com/angelo-gelato/loyalty-backend/internal/platform/startup"
	"github.com/angelo-gelato/loyalty-backend/internal/session"
	"github.com/angelo-gelato/loyalty-backend/internal/user"
	"github.com/angelo-gelato/loyalty-backend/pkg/lifecycle"
	"github.com/angelo-gelato/loyalty-backend/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Server.Mode); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logging.Sync()
	log := logging.L()
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 存储层
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 2. 门店目录和业务规则
	cat, err := catalog.Open(cfg.Shop.CatalogFile)
	if err != nil {
		return err
	}
	tiers, err := cat.TierTable()
	if err != nil {
		return err
	}
	loc := cfg.Shop.Location()
	rules, err := cat.PickupRules(cfg.Shop.OrderWindowDays, loc)
	if err != nil {
		return err
	}

	users := user.NewRepository(db, tiers)
	orders := order.NewRepository(db)
	if err := startup.Migrate(db, users, orders); err != nil {
		return err
	}

	// 3. 会话快照：Redis可用时写Redis，始终写数据库
	status := health.NewStatus(rdb != nil)
	sqlSnapshots := session.NewSQLStore(db)
	var snapshots session.SnapshotStore = sqlSnapshots
	var checker *health.Checker
	if rdb != nil {
		redisSnapshots := session.NewRedisStore(rdb)
		snapshots = session.NewFallbackStore(redisSnapshots, sqlSnapshots, status)
	}
	sessions := session.NewManager(snapshots)
	if rdb != nil {
		checker = health.NewChecker(rdb, status, startup.RebuildRedisSnapshots(session.NewRedisStore(rdb), sessions))
		if err := checker.Initialize(ctx); err != nil {
			return err
		}
	}

	// 4. 协作方
	issuer := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("未配置 auth.jwtSecret，使用随机密钥，重启后所有令牌失效")
	}
	maxUpload := cfg.Server.MaxUploadKB * 1024
	uploads, err := media.NewStore(cfg.Server.UploadDir, strings.TrimRight(cfg.Server.PublicBaseURL, "/")+"/uploads", maxUpload)
	if err != nil {
		return fmt.Errorf("初始化上传目录失败: %w", err)
	}

	// 5. HTTP
	router := api.NewRouter(cfg.Server,
		api.Handlers{
			Catalog: catalog.NewHandler(cat, rules),
			Account: account.NewHandler(users, sessions, issuer, uploads, tiers, account.Options{
				Location:       loc,
				MaxUploadBytes: maxUpload,
				SecureCookie:   strings.HasPrefix(cfg.Server.PublicBaseURL, "https://"),
			}),
			Order:  order.NewHandler(order.NewService(sessions, orders, cat, rules), sessions),
			Health: health.NewHandler(db, status),
		},
		api.Auth{Issuer: issuer, Users: users, Sessions: sessions},
		limitsFor(cfg.Limits, rdb, status),
	)
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. 后台服务
	background := lifecycle.NewManager(context.Background(), log)
	flusher := backup.NewFlusher(sessions, db, sqlSnapshots, cfg.Snapshot.Interval)
	if err := background.Go("snapshot-flusher", flusher.Run); err != nil {
		return err
	}
	if checker != nil {
		if err := background.Go("redis-health", func(h *lifecycle.Handle) error {
			checker.Run(h)
			return nil
		}); err != nil {
			return err
		}
	}
	coordinator := shutdown.NewCoordinator(background, flusher.Final)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("服务器已准备就绪", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务器异常退出: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return coordinator.Shutdown(server)
	})
	return g.Wait()
}

func limitsFor(cfg config.LimitsConfig, rdb *redis.Client, status *health.Status) api.Limits {
	var limits api.Limits
	if cfg.LoginAttempts > 0 {
		limits.Login = ratelimit.New(rdb, status, "login", cfg.LoginAttempts, cfg.Window)
	}
	if cfg.Scans > 0 {
		limits.Scan = ratelimit.New(rdb, status, "scan", cfg.Scans, cfg.Window)
	}
	return limits
}
