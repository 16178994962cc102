package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SyedMohammedSameer/Iqra/internal/ai"
	"github.com/SyedMohammedSameer/Iqra/internal/config"
	"github.com/SyedMohammedSameer/Iqra/internal/db"
	internalhttp "github.com/SyedMohammedSameer/Iqra/internal/http"
	"github.com/SyedMohammedSameer/Iqra/internal/jobs"
	"github.com/SyedMohammedSameer/Iqra/internal/repository"
	"github.com/SyedMohammedSameer/Iqra/internal/storage"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()
	store := repository.NewPostgres(pool)

	objects, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload dir init failed: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	var assistant ai.Assistant
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("gemini init failed: %v", err)
		}
		assistant = gemini
	} else {
		log.Printf("GEMINI_API_KEY not set, assistant endpoints disabled")
	}

	if err := jobs.Start(ctx, cfg, store, assistant); err != nil {
		log.Fatalf("daily content job init failed: %v", err)
	}

	server := internalhttp.NewServer(cfg, store, objects, assistant, redisClient)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("iqra http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
