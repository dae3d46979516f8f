package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiserver "github.com/jack-merrell/offley.fm/internal/api/server"
	"github.com/jack-merrell/offley.fm/internal/audio"
	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/config"
	database "github.com/jack-merrell/offley.fm/internal/db"
	"github.com/jack-merrell/offley.fm/internal/ingest"
	"github.com/jack-merrell/offley.fm/internal/phase"
	"github.com/jack-merrell/offley.fm/internal/presence"
	"github.com/jack-merrell/offley.fm/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	log.Println("Starting offley.fm server...")

	// 1. Configuration
	cfg := config.Load()

	// 2. Infrastructure
	db := database.New(cfg)
	db.AutoMigrate()

	store := storage.New(cfg)
	cat := catalog.NewStore(store)

	// 3. Metrics
	ingest.RegisterMetrics()
	presence.RegisterMetrics()
	go func() {
		http.Handle("/_metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/_metrics", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(cfg.Server.MetricsPort, nil); err != nil {
			log.Printf("⚠️ Metrics server error: %v", err)
		}
	}()

	// 4. Presence sweeper
	tracker := presence.New(phase.RealClock{}, time.Duration(cfg.Presence.TTLMS)*time.Millisecond)
	go tracker.Run(context.Background(), time.Duration(cfg.Presence.SweepSeconds)*time.Second)

	// 5. Ingestion pipeline with the real out-of-process collaborators
	transcoder := audio.FFmpeg{Bitrate: cfg.Ingest.Bitrate, SampleRate: cfg.Ingest.SampleRate}
	tempo := audio.TempoRunner{Command: cfg.Ingest.TempoCommand}
	pipeline := ingest.New(cfg, store, cat, db, transcoder, tempo)

	// 6. HTTP surface
	srv := apiserver.New(cfg, cat, pipeline, tracker, store, db)
	log.Printf("🚀 API server starting on %s", cfg.Server.Port)
	if err := srv.Run(); err != nil {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}
