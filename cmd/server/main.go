package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"enviroscan-backend/internal/aggregator"
	"enviroscan-backend/internal/api"
	"enviroscan-backend/internal/ml"
	"enviroscan-backend/internal/mqtt"
	"enviroscan-backend/internal/observability"
	"enviroscan-backend/internal/resolver"
	"enviroscan-backend/internal/sensor"
	"enviroscan-backend/internal/services"
	"enviroscan-backend/pkg/config"
)

func main() {
	log.Println("Starting Enviroscan Backend Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	// === Calibration Model ===
	log.Println("Loading calibration model...")
	modelConfig := ml.DefaultModelConfig()
	modelConfig.MinSamples = cfg.ModelMinSamples
	modelConfig.MaxSamples = cfg.ModelMaxSamples
	modelConfig.Forest.NumTrees = cfg.ModelNumTrees
	modelConfig.Forest.Seed = cfg.ModelRandomSeed

	model := ml.NewModel(modelConfig, ml.NewFileStore(cfg.ModelPath, cfg.ScalerPath), metrics)

	// === Device Access ===
	deviceResolver := resolver.NewResolver(resolver.Config{
		Hostname:   cfg.DeviceHostname,
		FallbackIP: cfg.DeviceFallbackIP,
		Timeout:    cfg.FetchTimeout,
	}, metrics)

	pollerConfig := sensor.DefaultPollerConfig()
	pollerConfig.ExpectedMAC = cfg.DeviceExpectedMAC
	pollerConfig.DataPath = cfg.DeviceDataPath
	pollerConfig.Timeout = cfg.FetchTimeout
	pollerConfig.MaxAttempts = cfg.FetchMaxAttempts
	poller := sensor.NewPoller(pollerConfig, metrics)

	history := aggregator.NewHistoryBuffer(cfg.HistoryCapacity)

	// === Acquisition Service ===
	acquisitionConfig := services.AcquisitionServiceConfig{
		PollInterval: cfg.PollInterval,
		ExpectedMAC:  cfg.DeviceExpectedMAC,
	}
	if cfg.MQTTEnabled() {
		acquisitionConfig.ChannelSize = 100
	}
	acquisitionService := services.NewAcquisitionService(deviceResolver, poller, model, history, metrics, acquisitionConfig)

	g, gctx := errgroup.WithContext(ctx)

	// === Optional MQTT live feed ===
	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled() {
		log.Println("Connecting to MQTT broker...")
		var err error
		mqttClient, err = mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			log.Fatalf("Failed to initialize MQTT client: %v", err)
		}

		publisherConfig := mqtt.DefaultPublisherConfig()
		publisherConfig.ReadingTopic = cfg.MQTTTopicReading
		publisher := mqtt.NewPublisher(mqttClient.Publisher(), publisherConfig, acquisitionService.ReadingChan)

		g.Go(func() error {
			publisher.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		acquisitionService.Start(gctx)
		return nil
	})

	// === Presentation Server ===
	handlers := api.NewHandlers(history, model, acquisitionService, cfg.RecentReadings)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// === Log startup info ===
	log.Println("=== Enviroscan Backend Service is running ===")
	log.Printf("Device: %s (fallback %s, MAC %s)", cfg.DeviceHostname, cfg.DeviceFallbackIP, cfg.DeviceExpectedMAC)
	log.Printf("Polling every %v, history of %d readings", cfg.PollInterval, cfg.HistoryCapacity)
	log.Printf("Model: %s / %s (trained=%v)", cfg.ModelPath, cfg.ScalerPath, model.IsTrained())
	log.Printf("HTTP: %s", cfg.HTTPAddr)
	if cfg.MQTTEnabled() {
		log.Printf("MQTT: %s -> %s", cfg.MQTTBroker, cfg.MQTTTopicReading)
	}
	log.Println("Press Ctrl+C to exit...")

	err := g.Wait()

	// Explicit so the broker sees a clean disconnect on the error path too
	if mqttClient != nil {
		mqttClient.Close()
	}
	if err != nil {
		log.Printf("Service stopped with error: %v", err)
		stop()
		os.Exit(1)
	}

	log.Println("Shutdown complete. Goodbye!")
}
