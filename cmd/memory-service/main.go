package main

import (
	"flag"
	"os"

	"github.com/qaintel/eventmemory/internal/config"
	"github.com/qaintel/eventmemory/memoryservice"
)

func main() {
	// Optional overrides for local runs; environment variables remain the source of truth.
	port := flag.Int("port", 0, "Override EVENT_MEMORY_HTTP_PORT")
	dbDriver := flag.String("db-driver", "", "Override EVENT_MEMORY_DB_DRIVER (sqlite, postgres)")
	embedProvider := flag.String("embed-provider", "", "Override EVENT_MEMORY_EMBED_PROVIDER (ollama, openai, hash)")
	flag.Parse()

	err := memoryservice.Run(func(cfg *config.Config) error {
		if *port != 0 {
			cfg.HTTPPort = *port
		}
		if *dbDriver != "" {
			cfg.DBDriver = *dbDriver
		}
		if *embedProvider != "" {
			cfg.EmbedProvider = *embedProvider
		}
		return cfg.ResolveDefaults()
	})
	if err != nil {
		os.Exit(1)
	}
}
