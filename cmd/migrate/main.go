// Миграции PostgreSQL: up, down, status, redo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	config "github.com/glkeru/loyalty/userpoints/internal/config"
	db "github.com/glkeru/loyalty/userpoints/internal/db"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.Storage != config.StoragePostgres {
		logger.Fatal("migrations need POINTS_STORAGE=postgres", zap.String("storage", cfg.Storage))
	}

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: migrate [command]")
		fmt.Println("Commands: up, down, status, redo")
		os.Exit(1)
	}
	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger.Info("migration", zap.String("command", command))
	if err := db.RunMigrations(ctx, cfg.DSN(), command); err != nil {
		logger.Fatal("migration", zap.Error(err))
	}
	logger.Info("migration is finished")
}
