package main

import (
	"context"

	"github.com/jaehyunp/algolog/internal/auth"
	"github.com/jaehyunp/algolog/internal/cache"
	"github.com/jaehyunp/algolog/internal/config"
	"github.com/jaehyunp/algolog/internal/database"
	"github.com/jaehyunp/algolog/internal/handler"
	"github.com/jaehyunp/algolog/internal/logger"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type application struct {
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Config  *config.Config
	Handler *handler.Handler
}

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, _ := logger.NewLogger(cfg.Env)
	defer log.Sync()
	sugar := log.Sugar()
	sugar.Infof("config loaded, env=%s", cfg.Env)

	pool, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		sugar.Fatal(err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		sugar.Fatal(err)
	}

	rdb := cache.NewRedisClient(cfg.Redis)
	if err := cache.Ping(ctx, rdb); err != nil {
		sugar.Fatal(err)
	}

	repo := repository.NewRepository(pool)
	q := queue.New(rdb, cfg.Worker.MaxAttempts)

	h := &handler.Handler{
		Logger:     log,
		Posts:      &repo.Post,
		Users:      &repo.User,
		Queue:      q,
		TokenMaker: auth.NewJWTMaker(cfg.JWT.Secret),
		TokenTTL:   cfg.JWT.AccessTokenTTL,
	}

	app := &application{
		DB:      pool,
		Redis:   rdb,
		Logger:  log,
		Config:  cfg,
		Handler: h,
	}

	if err := app.serve(); err != nil {
		sugar.Fatal(err)
	}
}
