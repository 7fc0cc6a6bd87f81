package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daemonp/inim2mqtt/internal/cache"
	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/homeassistant"
	"github.com/daemonp/inim2mqtt/internal/log"
	"github.com/daemonp/inim2mqtt/internal/mqtt"
	"github.com/daemonp/inim2mqtt/internal/panel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logger := log.NewLogger(cfg.Log)

	// Create panel
	p := panel.NewPanel(cfg, logger)

	// Create MQTT client
	mqttClient := mqtt.NewMQTT(&cfg.MQTT, p, logger)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Load cache if enabled
	if cfg.Cache {
		cacheData, err := cache.LoadCache()
		if err != nil {
			logger.Warning("Failed to load cache: %v", err)
		} else if cacheData != nil && cacheData.State != nil {
			p.SetCachedState(cacheData.State)
			logger.Info("Loaded snapshot from cache")
		}
	}

	// Login and fetch the initial snapshot, then start polling
	if err := p.Start(context.Background()); err != nil {
		logger.Error("Failed to start panel synchronization: %v", err)
		os.Exit(1)
	}

	// Save cache if enabled
	if cfg.Cache {
		if err := cache.SaveCache(p.State()); err != nil {
			logger.Warning("Failed to save cache: %v", err)
		} else {
			logger.Info("Saved snapshot to cache")
		}
	}

	// Connect to MQTT broker
	if err := mqttClient.Connect(); err != nil {
		logger.Error("Failed to connect to MQTT broker: %v", err)
		stopPanel(p)
		os.Exit(1)
	}

	// Initialize and start Home Assistant integration if enabled
	if cfg.HomeAssistant.Discovery {
		ha := homeassistant.New(&cfg.HomeAssistant, mqttClient, p, logger)
		ha.Start()
	}

	// Wait for termination signal
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down...")
	stopPanel(p)
	mqttClient.Close()

	// Delete cache if enabled
	if cfg.Cache {
		if err := cache.DeleteCache(); err != nil {
			logger.Warning("Failed to delete cache: %v", err)
		} else {
			logger.Info("Deleted cache")
		}
	}
}

func stopPanel(p *panel.Panel) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	p.Stop(ctx)
}
