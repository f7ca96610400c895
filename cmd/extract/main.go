// Command extract runs the language model over the filing store and writes
// new-product announcements to the output CSV.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

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

	summary, err := stages.Extract(ctx, env)
	if errors.Is(err, store.ErrStoreMissing) {
		log.Fatalf("Critical: %v. Run retrieve first.", err)
	}
	if err != nil {
		env.Log.WithError(err).Fatal("extraction failed")
	}
	env.Log.WithField("run_id", summary.RunID).Infof("Accepted %d of %d records", summary.Accepted, summary.Records)
}
