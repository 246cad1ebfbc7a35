package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonhson0816/nelly-api/internal/audit"
	"github.com/jonhson0816/nelly-api/internal/auth"
	"github.com/jonhson0816/nelly-api/internal/callhistory"
	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/config"
	"github.com/jonhson0816/nelly-api/internal/gamification"
	"github.com/jonhson0816/nelly-api/internal/hashtags"
	"github.com/jonhson0816/nelly-api/internal/httpapi"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/internal/realtime"
	"github.com/jonhson0816/nelly-api/internal/reporting"
	"github.com/jonhson0816/nelly-api/internal/users"
	"github.com/jonhson0816/nelly-api/pkg/logger"
	"github.com/jonhson0816/nelly-api/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// localAuditEvents bounds the in-process audit log used when APP_ENV=local.
const localAuditEvents = 1000

// awardTimeout bounds the gamification write triggered by a completed call.
const awardTimeout = 5 * time.Second

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Realtime core
	hub := realtime.NewHub(log)
	registry := presence.NewRegistry(hub,
		presence.WithMirror(presence.NewRedisMirror(rdb, cfg.Realtime.PresenceTTL)),
		presence.WithLogger(log),
	)

	historyRepo := callhistory.NewPostgresRepo(db)
	history := callhistory.NewService(historyRepo, callhistory.WithLogger(log))

	controller := calls.NewController(registry, history,
		calls.WithSettings(calls.Settings{
			RingTimeout:         cfg.Realtime.RingTimeout,
			HistoryWriteTimeout: cfg.Realtime.HistoryWriteTimeout,
			PersistDeclines:     cfg.Realtime.PersistDeclines,
			PersistOnDisconnect: cfg.Realtime.PersistOnDisconnect,
		}),
		calls.WithLogger(log),
	)
	relay := calls.NewRelay(registry, log)
	dispatcher := realtime.NewDispatcher(registry, controller, relay, log)
	wsHandler := realtime.NewHandler(realtime.HandlerConfig{
		SendBuffer:     cfg.Realtime.SendBuffer,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, authManager, hub, registry, controller, dispatcher, log)

	// Supporting services
	directory := users.NewCachedDirectory(users.NewPostgresDirectory(db), cfg.Cache.DirectoryTTL)
	defer directory.Stop()

	game := gamification.NewService(gamification.NewRedisRepo(rdb), log)
	controller.OnResolved(func(r calls.Resolution) {
		if r.Status != callhistory.StatusCompleted {
			return
		}
		go awardCall(game, log, r)
	})

	handlers := httpapi.Handlers{
		Auth:         authManager,
		History:      history,
		Reporting:    reporting.NewService(historyRepo),
		Users:        directory,
		Presence:     registry,
		Calls:        controller,
		Hashtags:     hashtags.NewTracker(hashtags.NewRedisStore(rdb, cfg.Cache.TrendingWindow), cfg.Cache.TrendingWindow),
		Gamification: game,
		Audit:        audit.NewService(auditRepo(cfg, db, log)),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/readyz", "/metrics"))

	registerRoutes(r, routeDeps{
		authMW:   auth.RequireAccessToken(authManager),
		handlers: handlers,
		ws:       wsHandler,
		db:       db,
		redis:    rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func awardCall(game *gamification.Service, log *slog.Logger, r calls.Resolution) {
	ctx, cancel := context.WithTimeout(context.Background(), awardTimeout)
	defer cancel()
	for _, uid := range []string{r.CallerID, r.ReceiverID} {
		if _, err := game.Award(ctx, uid, gamification.ActionCallCompleted); err != nil {
			log.Warn("call award failed", "call_id", r.CallID, "user_id", uid, "err", err)
		}
	}
}

// auditRepo keeps local runs free of the audit_events migration.
func auditRepo(cfg config.Config, db *sql.DB, log *slog.Logger) audit.Repository {
	if cfg.App.Env == "local" {
		log.Info("audit events kept in memory", "max", localAuditEvents)
		return audit.NewBoundedMemoryRepo(localAuditEvents)
	}
	return audit.NewPostgresRepo(db)
}
