package database_test

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wonny/spxlab/pkg/config"
	"github.com/wonny/spxlab/pkg/database"
)

// Example opens the pool from DATABASE_URL and exposes it on a metrics registry
func Example() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.HasDatabase() {
		return
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.ApplySchema(ctx, "scratch", `CREATE TABLE IF NOT EXISTS scratch_notes (id INT PRIMARY KEY)`); err != nil {
		log.Fatalf("schema: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(database.NewPoolCollector(db))

	status, _ := db.HealthCheck(ctx)
	fmt.Printf("healthy=%v max_conns=%d\n", status.Healthy, status.Stats.MaxConns)
}
