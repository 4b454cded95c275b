package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/cmd/index"
	"github.com/chirino/movie-service/internal/cmd/migrate"
	"github.com/chirino/movie-service/internal/cmd/serve"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// A .env file is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not read .env file", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "movie-service",
		Usage: "Movie recommendation service with cached catalog and semantic search",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			index.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
