// Command retrieve downloads recent 8-K filing text for the configured
// universe into the intermediate filing store.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"filing_signals/pkg/core/stages"

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

	summary, err := stages.Retrieve(ctx, env)
	if err != nil {
		env.Log.WithError(err).Fatal("retrieval failed")
	}
	env.Log.WithField("run_id", summary.RunID).Infof("Retrieved %d filings for %d companies (%d skipped)",
		summary.Records, summary.Companies, summary.CompaniesSkipped)
}
