// Command manualrun runs one ingestion pass outside the schedule, or prints
// the stored username history for a single user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"yesman/middleman/internal/app"
	"yesman/middleman/internal/config"
	"yesman/middleman/internal/logging"
	"yesman/middleman/internal/models"
	"yesman/middleman/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	userID := flag.String("userid", "", "print the stored username history for this userid and exit")
	skipDownload := flag.Bool("skip-download", false, "process the existing snapshot file without downloading")
	flag.Parse()

	cfg := config.MustLoad()
	logger, logFile := logging.Setup(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		File:        cfg.LogFile,
	})
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	if err := a.Store.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("History store health check failed")
	}

	if *userID != "" {
		if err := printHistory(ctx, a.Store, *userID); err != nil {
			log.Fatal().Err(err).Str("userid", *userID).Msg("History lookup failed")
		}
		return
	}

	if *skipDownload {
		err = a.Pipeline.Run(ctx)
	} else {
		err = a.Job.Ingest(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Manual run failed")
	}

	if a.Cache != nil {
		if last, err := a.Cache.LastRunSummary(ctx); err == nil && last != nil {
			log.Info().
				Str("status", last.Status).
				Int("records", last.Records).
				Int64("inserted", last.Inserted).
				Int64("unchanged", last.Unchanged).
				Msg("Last run summary")
		}
	}
	log.Info().Msg("Manual run complete")
}

func printHistory(ctx context.Context, store repository.UsernameStore, userID string) error {
	rows, err := store.History(ctx, userID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no history for userid %s: %w", userID, repository.ErrNotFound)
	}

	current, err := store.Current(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tRANK\tELO\tSTART\tEND\tCURRENT")
	for _, row := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%t\n",
			row.ID, displayName(row), row.Rank, row.Elo,
			row.StartDate.Format("2006-01-02 15:04:05"),
			row.EndDate.Format("2006-01-02 15:04:05"),
			row.IsCurrent)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if current != nil {
		fmt.Printf("\ncurrent username: %s\n", displayName(*current))
	}
	return nil
}

func displayName(row models.UsernameHistoryRow) string {
	if !row.Username.Valid {
		return "(unresolved)"
	}
	return row.Username.String
}
