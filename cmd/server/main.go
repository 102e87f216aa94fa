package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"skyrelay/pkg/config"
	"skyrelay/pkg/log"
	"skyrelay/pkg/network"
	"skyrelay/pkg/sessions"
	"skyrelay/pkg/workers"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel))
	log.Info("Log level set to %s", parsedLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := sessions.NewRegistry(sessions.NewRegistryOptions{
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow(),
	})

	broadcastWorker := workers.NewBroadcastWorker(workers.NewBroadcastWorkerOptions{
		Registry: registry,
		Interval: cfg.BroadcastInterval(),
	})
	go broadcastWorker.Start(ctx)

	reaperWorker := workers.NewReaperWorker(workers.NewReaperWorkerOptions{
		Registry: registry,
		Timeout:  cfg.SessionTimeout(),
		Interval: cfg.ReapInterval(),
	})
	go reaperWorker.Start(ctx)

	server := network.NewWSServer(network.NewWSServerOptions{
		Port:     cfg.Port,
		Registry: registry,
	})
	server.Start(ctx)
}
