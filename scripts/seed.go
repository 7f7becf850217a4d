package main

import (
	"context"

	"seroest/config"
	"seroest/db"
	"seroest/logging"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if !cfg.RemoteConfigured() {
		log.Fatal("BACKEND_URL and BACKEND_KEY must be set to seed a remote backend")
	}

	ctx := context.Background()
	store, err := db.OpenRemote(ctx, cfg.Backend, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open remote backend")
	}
	defer store.Close()

	log.WithField("backend", store.Name()).Info("🌱 Starting database seeding...")

	if err := db.Seed(ctx, store, log); err != nil {
		log.WithError(err).Fatal("Seeding failed")
	}

	log.Info("✅ Database seeding completed successfully!")
}
