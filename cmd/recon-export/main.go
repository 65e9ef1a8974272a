// Command recon-export dumps failed outcomes whose inventory compensation did
// not apply. These orders may still hold stock for a charge that never
// settled; operators feed the export into manual reconciliation.
//
// Output is gzipped NDJSON, one outcome per line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/storage/postgres"
)

// exportRecord is one NDJSON line of the reconciliation export.
type exportRecord struct {
	OrderID        string       `json:"orderId"`
	Items          []order.Item `json:"items"`
	Total          string       `json:"total"`
	Currency       string       `json:"currency"`
	Reason         string       `json:"reason"`
	FailureMessage string       `json:"failureMessage"`
	CompletedAt    time.Time    `json:"completedAt"`
}

func main() {
	var (
		databaseURL string
		outPath     string
		since       time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "", "output file (default recon-<date>.ndjson.gz)")
	flag.DurationVar(&since, "since", 7*24*time.Hour, "how far back to export")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if outPath == "" {
		outPath = fmt.Sprintf("recon-%s.ndjson.gz", time.Now().Format("20060102"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, databaseURL, outPath, since); err != nil {
		slog.Error("export failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, outPath string, since time.Duration) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// The repository's retention also bounds Get, so it must cover the full
	// export window regardless of the server's configured retention.
	repo := postgres.NewOutcomeRepository(pool, since)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	enc := json.NewEncoder(gz)

	var exported int
	cutoff := time.Now().Add(-since)
	err = repo.Unreconciled(ctx, cutoff, func(out *checkout.Outcome) error {
		exported++
		return enc.Encode(exportRecord{
			OrderID:        out.Order.ID,
			Items:          out.Order.Items,
			Total:          out.Order.Total.String(),
			Currency:       out.Order.Currency,
			Reason:         string(out.Reason),
			FailureMessage: out.FailureMessage,
			CompletedAt:    out.CompletedAt,
		})
	})
	if err != nil {
		return err
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush gzip: %w", err)
	}

	slog.Info("export complete", "file", outPath, "outcomes", exported, "since", cutoff.Format(time.RFC3339))
	return nil
}
