// Command sitewatch runs the on-site detection service: it captures
// frames from a camera, detects site assets through the inference
// sidecar, redacts privacy-sensitive regions, annotates target objects
// and ships the results to the cloud with a durable local fallback.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sitewatch/internal/auth"
	"sitewatch/internal/config"
	"sitewatch/internal/delivery"
	"sitewatch/internal/detection"
	"sitewatch/internal/imaging"
	"sitewatch/internal/journal"
	"sitewatch/internal/location"
	"sitewatch/internal/pipeline"
	"sitewatch/internal/server"
	"sitewatch/internal/source"
	"sitewatch/internal/storage"
	"sitewatch/internal/upload"
	"sitewatch/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	flag.Parse()

	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("[Main] Loaded environment from .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Main] Configuration error: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func run(cfg *config.Config) error {
	log.Println("[Main] Starting sitewatch")

	// Delivery journal (optional)
	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		var err error
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jnl.Close()
	}

	// Durable fallback storage
	backlog, err := storage.NewBacklog(cfg.Delivery.BacklogDir)
	if err != nil {
		return err
	}

	// Upload path: device-token-authenticated HTTP PUTs
	tokens := upload.NewTokenSource(cfg.Delivery.DeviceID, []byte(cfg.Delivery.DeviceSecret), 0)
	uploader, err := upload.NewHTTPUploader(cfg.Delivery.Host, tokens, cfg.Delivery.UploadTimeout.Std())
	if err != nil {
		return err
	}

	// Position source
	var locProvider pipeline.LocationProvider
	switch cfg.Location.Mode {
	case "static":
		locProvider = location.NewStatic(cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.Accuracy)
	case "gpsd":
		gpsd := location.NewGPSD(cfg.Location.GPSDAddr)
		gpsd.Start()
		defer gpsd.Stop()
		locProvider = gpsd
	default:
		locProvider = location.NewNone()
	}

	counters := &delivery.Counters{}
	deliverer := delivery.NewDeliverer(uploader, backlog, locProvider, jnl, counters, delivery.Config{
		Timeout: cfg.Delivery.UploadTimeout.Std(),
	})
	drainer := delivery.NewDrainer(backlog, uploader, counters, jnl, cfg.Delivery.DrainInterval.Std())
	deliverer.SetFallbackHook(drainer.Kick)
	drainer.Start()
	defer drainer.Stop()
	defer deliverer.Close()

	// Inference engine must be reachable at startup; a missing engine is
	// a deployment error, not a per-frame one.
	detector := detection.NewEngineClient(detection.Config{
		Endpoint: cfg.Engine.Endpoint,
		Timeout:  cfg.Engine.RequestTimeout.Std(),
	})
	defer detector.Close()
	if !detector.IsHealthy() {
		return fmt.Errorf("inference engine at %s is not ready (model not loaded)", cfg.Engine.Endpoint)
	}

	// Frame processing chain
	redactor := imaging.NewRedactor(imaging.RedactMode(cfg.Privacy.Mode))
	annotator := imaging.NewAnnotator(nil)
	configStore := pipeline.NewConfigStore(cfg.DetectionConfig())
	events := pipeline.NewEventBus()
	defer events.Close()

	hub := ws.NewHub()
	defer hub.Close()
	events.Subscribe(hub)

	pipe := pipeline.New(cfg.Source.ID, detector, redactor, annotator, deliverer, configStore, events)
	pipe.Start()
	defer pipe.Stop()

	camera := source.New(source.Config{
		ID:     cfg.Source.ID,
		Device: cfg.Source.Device,
		FPS:    cfg.Source.FPS,
		Width:  cfg.Source.Width,
		Height: cfg.Source.Height,
	})
	if err := camera.Start(pipe); err != nil {
		return err
	}
	defer camera.Stop()

	// Control API
	authenticator := auth.NewAuthenticator(cfg.Auth)
	srv := server.New(cfg.Server.Addr, pipe, detector, counters, backlog, hub, authenticator)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		log.Printf("[Main] Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Main] Server shutdown error: %v", err)
	}

	log.Println("[Main] Shutdown complete")
	return nil
}
