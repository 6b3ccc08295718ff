package main

import (
	"fmt"
	"log"
	"os"

	"invoice-agent/internal/config"
	"invoice-agent/migrations"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		if err := migrations.Up(cfg.Database.URL); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Migrations applied.")
	case "down":
		if err := migrations.Down(cfg.Database.URL); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Rolled back one migration.")
	case "version":
		v, dirty, err := migrations.Version(cfg.Database.URL)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	default:
		log.Fatalf("Unknown command: %s\nAvailable: up, down, version", cmd)
	}
}
