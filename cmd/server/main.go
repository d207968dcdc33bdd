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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/dac-governance/internal/config"
	"github.com/iliyamo/dac-governance/internal/database"
	"github.com/iliyamo/dac-governance/internal/handler"
	"github.com/iliyamo/dac-governance/internal/middleware"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/queue"
	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/repository/memrepo"
	"github.com/iliyamo/dac-governance/internal/router"
	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/utils/logger"
	"github.com/iliyamo/dac-governance/internal/validator"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New("dac-governance").WithDebug(cfg.LogDebug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = log.Error("open store", err)
		os.Exit(1)
	}
	defer closeStore()
	if err := bootstrapAdmin(ctx, store, cfg.BcryptCost, log); err != nil {
		_ = log.Error("bootstrap admin", err)
		os.Exit(1)
	}

	deps := service.Deps{Store: store, Log: log.Named("service")}
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, log.Named("publisher"))
		deps.Notifier, deps.Matcher = pub, pub
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.NotificationLogDir, log.Named("consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("consumer stopped: %v", err)
			}
		}()
	} else {
		log.Warn("broker disabled: notifications and match reprocessing are skipped")
	}

	elections := service.NewElectionService(deps)
	handlers := router.Handlers{
		Auth:        handler.NewAuthHandler(cfg, store),
		Elections:   handler.NewElectionHandler(elections),
		Votes:       handler.NewVoteHandler(service.NewVoteService(deps, elections)),
		Dars:        handler.NewDarHandler(service.NewDarService(deps, elections)),
		Users:       handler.NewUserHandler(service.NewUserService(deps, elections)),
		LibraryCard: handler.NewLibraryCardHandler(service.NewLibraryCardService(deps)),
	}

	rdb := config.NewRedisClient(log.Named("redis"))
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()
	e.Use(echomw.Recover(), echomw.RequestID(), echomw.Logger())
	var db handler.Pinger
	if sqlStore, ok := store.(*repository.SQLStore); ok {
		db = sqlStore.DB()
	}
	router.RegisterRoutes(e, handler.NewHealthHandler(db))
	cacheCfg := config.LoadCacheConfig()
	router.RegisterAPI(e, handlers, router.Options{
		JWTSecret:  cfg.JWTSecret,
		Users:      store,
		Cache:      middleware.NewRedisCache(cacheCfg, rdb),
		Invalidate: middleware.NewCacheInvalidator(cacheCfg, rdb),
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = log.Error("http server", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		_ = log.Error("shutdown", err)
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using the in-memory store; data is lost on restart")
		return memrepo.New(), func() {}, nil
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.Migrate {
		roles := make([]database.RoleRow, 0, len(model.AllRoles()))
		for _, r := range model.AllRoles() {
			roles = append(roles, database.RoleRow{ID: r.ID(), Name: string(r)})
		}
		if err := database.Migrate(ctx, db, roles); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Success("schema migrated")
	}
	return repository.NewSQLStore(db), func() { _ = db.Close() }, nil
}
