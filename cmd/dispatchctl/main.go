// dispatchctl is an operator tool for inspecting and retrying outbound
// dispatches without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"walletbridge/internal/domain"
	"walletbridge/internal/forwarder"
	"walletbridge/internal/repository/postgres"
	"walletbridge/pkg/config"
	"walletbridge/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	var (
		status = flag.String("status", "failed", "dispatch status to list (pending|success|failed)")
		limit  = flag.Int("limit", 20, "maximum rows to list")
		retry  = flag.String("retry", "", "dispatch UUID to retry")
	)
	flag.Parse()

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDispatchRepository(db)
	svc := forwarder.NewService(repo, cfg.Forward, logger.New("dispatchctl"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if *retry != "" {
		retryDispatch(ctx, svc, *retry)
		return
	}

	listDispatches(ctx, svc, domain.DispatchStatus(*status), *limit)
}

func retryDispatch(ctx context.Context, svc *forwarder.Service, raw string) {
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Fatalf("Invalid dispatch UUID: %v", err)
	}

	dispatch, err := svc.Retry(ctx, id)
	if err != nil {
		fmt.Printf("Retry failed: %v\n", err)
		if dispatch != nil {
			printDispatch(dispatch)
		}
		os.Exit(1)
	}

	fmt.Println("Dispatch delivered")
	printDispatch(dispatch)
}

func listDispatches(ctx context.Context, svc *forwarder.Service, status domain.DispatchStatus, limit int) {
	dispatches, total, err := svc.List(ctx, status, limit, 0)
	if err != nil {
		log.Fatalf("Failed to list dispatches: %v", err)
	}

	fmt.Printf("Dispatches (status=%s, showing %d of %d)\n", status, len(dispatches), total)
	for _, d := range dispatches {
		printDispatch(d)
	}
}

func printDispatch(d *domain.Dispatch) {
	line := fmt.Sprintf("  %s  %-7s  attempts=%d  %s  %s %s -> %s",
		d.UUID, d.Status, d.Attempts, d.Code, d.Amount.String(), d.Currency, d.DestinationURL)
	if d.LastError != nil {
		line += fmt.Sprintf("  last_error=%q", *d.LastError)
	}
	fmt.Println(line)
}
