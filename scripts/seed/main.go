// Seed adds sample todos to the database. Run from project root: go run ./scripts/seed --count 500
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"todo-service/internal/config"
	"todo-service/internal/database"
	"todo-service/internal/models"
	"todo-service/internal/repository"
)

func main() {
	count := pflag.IntP("count", "n", 100, "number of todos to insert")
	advanceEvery := pflag.Int("advance-every", 3, "advance every Nth todo one status step (0 disables)")
	pflag.Parse()

	ctx := context.Background()
	cfg := config.Get()
	db, err := database.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Database connection failed:", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db, cfg.DatabaseDriver); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	start := time.Now()
	stats, err := seed(ctx, repository.New(db, cfg.DatabaseDriver), *count, *advanceEvery)
	if err != nil {
		fmt.Fprintln(os.Stderr, "\nSeed failed:", err)
		os.Exit(1)
	}
	fmt.Printf("\nDone: %d todos in %v (%v)\n", *count, time.Since(start), stats)
}

type seeder interface {
	Create(ctx context.Context, description string) (int64, error)
	AdvanceStatus(ctx context.Context, id int64) (models.Status, error)
}

// seed inserts count todos and advances every advanceEvery-th one. It returns
// how many todos ended in each status.
func seed(ctx context.Context, repo seeder, count, advanceEvery int) (map[models.Status]int, error) {
	stats := map[models.Status]int{}
	for i := 1; i <= count; i++ {
		id, err := repo.Create(ctx, fmt.Sprintf("Todo %d", i))
		if err != nil {
			return stats, err
		}
		status := models.StatusOpen
		if advanceEvery > 0 && i%advanceEvery == 0 {
			if status, err = repo.AdvanceStatus(ctx, id); err != nil {
				return stats, err
			}
		}
		stats[status]++
		if i%100 == 0 || i == count {
			fmt.Printf("\rInserted %d / %d", i, count)
		}
	}
	return stats, nil
}
