package main

import (
	"flag"
	"log"

	"github.com/Hussein-Mazeh/vaultlock/internal/config"
	"github.com/Hussein-Mazeh/vaultlock/internal/db"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file")
	dir := flag.String("dir", "", "vault directory (overrides "+config.EnvVaultDir+")")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dir != "" {
		cfg.VaultDir = *dir
	}

	d, err := db.Open(cfg.DBPath())
	if err != nil {
		log.Fatalf("open state database: %v", err)
	}
	defer db.Close(d)

	if err := db.Vacuum(d); err != nil {
		log.Fatalf("initialize state database: %v", err)
	}
	log.Printf("state database ready at %s", d.Path())
}
