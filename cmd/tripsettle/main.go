package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()

	config := NewConfig()
	if err := config.LoadDotEnv(os.Getwd); err != nil {
		slog.Error("can't read .env file", "error", err.Error())
		os.Exit(1)
	}
	config.LoadEnv(os.Getenv)
	if err := config.ParseFlags(os.Args[1:]); err != nil {
		slog.Error("can't parse flags", "error", err.Error())
		os.Exit(1)
	}

	app, err := NewApp(ctx, config)
	if err != nil {
		slog.Error("can't initialize app, sorry", "error", err.Error())
		os.Exit(1)
	}

	// Initialize context that cancelled on SIGTERM
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		slog.Warn("Interrupt signal")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		slog.Error("Service error", "error", err.Error())
		os.Exit(1)
	}
}
