package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jaehyunp/algolog/internal/cache"
	"github.com/jaehyunp/algolog/internal/config"
	"github.com/jaehyunp/algolog/internal/database"
	"github.com/jaehyunp/algolog/internal/enrich"
	"github.com/jaehyunp/algolog/internal/logger"
	"github.com/jaehyunp/algolog/internal/openai"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/internal/repository"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, _ := logger.NewLogger(cfg.Env)
	defer log.Sync()
	sugar := log.Sugar()
	sugar.Infof("worker starting, env=%s concurrency=%d", cfg.Env, cfg.Worker.Concurrency)

	pool, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		sugar.Fatal(err)
	}
	defer pool.Close()

	rdb := cache.NewRedisClient(cfg.Redis)
	if err := cache.Ping(ctx, rdb); err != nil {
		sugar.Fatal(err)
	}

	repo := repository.NewRepository(pool)
	client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout)

	q := queue.New(rdb, cfg.Worker.MaxAttempts)
	w := queue.NewWorker(q, log, cfg.Worker.Concurrency, cfg.Worker.PollInterval)

	pipeline := enrich.NewPipeline(&repo.Post, client, log)
	pipeline.Register(w)

	if err := w.Run(ctx); err != nil {
		sugar.Fatal(err)
	}
	sugar.Info("worker stopped")
}
