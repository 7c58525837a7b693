package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/taskgate/taskgate/internal"
	"github.com/taskgate/taskgate/internal/config"
	"github.com/taskgate/taskgate/internal/log"
)

var BuildVersion = "dev"

func main() {
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.LogError("Invalid configuration: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting taskgate", map[string]any{
		"version":    BuildVersion,
		"addr":       cfg.Addr,
		"authServer": cfg.AuthServerURL,
		"storage":    string(cfg.Storage),
	})

	gateway, err := internal.NewTaskgate(context.Background(), cfg, BuildVersion)
	if err != nil {
		log.LogError("Failed to build gateway: %v", err)
		os.Exit(1)
	}

	if err := gateway.Run(); err != nil {
		log.LogError("Gateway exited with error: %v", err)
		os.Exit(1)
	}
}
