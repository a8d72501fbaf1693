package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"electsys/internal/app/bootstrap"
)

// Ballot process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build worker wiring (repositories + ballot runner + outbox relay).
// 3) Arm the scheduled ballot timer and relay outbox events until shutdown.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildBallotWorker()
	if err != nil {
		log.Fatalf("electsys ballot bootstrap failed: %v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("electsys ballot stopped: %v", err)
	}
}
