// Command pipeline runs retrieval and extraction back to back under one
// run id.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"filing_signals/pkg/core/stages"
	"filing_signals/pkg/core/store"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := stages.Setup(ctx)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer store.Close()
	start := time.Now()

	// 1. Retrieval
	rs, err := stages.Retrieve(ctx, env)
	if err != nil {
		env.Log.WithError(err).Fatal("retrieval failed")
	}
	env.Log.Infof("Retrieved %d filings for %d companies", rs.Records, rs.Companies)

	// 2. Extraction
	es, err := stages.Extract(ctx, env)
	if err != nil {
		env.Log.WithError(err).Fatal("extraction failed")
	}
	env.Log.WithField("run_id", env.RunID).Infof("Pipeline completed in %v: %d accepted, %d discarded",
		time.Since(start).Round(time.Second), es.Accepted, es.Records-es.Accepted)
}
