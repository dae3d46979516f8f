package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jack-merrell/offley.fm/internal/config"
	"github.com/jack-merrell/offley.fm/internal/phase"
	"github.com/jack-merrell/offley.fm/internal/player"
	"github.com/jack-merrell/offley.fm/internal/tuner"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "offley.fm server base URL")
	freq := flag.String("freq", "", "tune straight to this frequency, e.g. 91.5")
	flag.Parse()

	log.SetFlags(log.LstdFlags)

	cfg := config.Load()

	cache := player.NewCache(*server, cfg.Server.TempDir)
	out, err := player.NewSpeakerOutput(cache)
	if err != nil {
		log.Fatalf("❌ Audio output unavailable: %v", err)
	}

	controller := player.New(out, phase.RealClock{}, player.Options{
		MetadataTimeout: time.Duration(cfg.Player.MetadataTimeoutSeconds) * time.Second,
		ResyncInterval:  time.Duration(cfg.Player.ResyncSeconds) * time.Second,
		DriftThreshold:  cfg.Player.DriftThresholdSeconds,
	})

	// A fresh id per run: presence counts devices, not accounts.
	clientID := uuid.NewString()
	radio := tuner.New(*server, clientID, controller)
	if *freq != "" {
		radio.SetPendingFrequency(*freq)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go controller.Run(ctx)
	go radio.RunHeartbeat(ctx, time.Duration(cfg.Player.HeartbeatSeconds)*time.Second)

	log.Printf("📻 Listener %s tuned to %s", clientID, *server)
	radio.RunPoll(ctx, time.Duration(cfg.Player.PollSeconds)*time.Second)

	controller.Close()
	log.Println("👋 Off air")
}
