package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/pathq/pkg/stores"
)

// ExampleOpen demonstrates recording and reading API state history.
func ExampleOpen() {
	ctx := context.Background()
	store, err := stores.Open(ctx, ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = store.RecordTransition(ctx, &stores.Transition{From: "unknown", To: "reliable", At: at})
	_ = store.RecordTransition(ctx, &stores.Transition{From: "reliable", To: "rate_limited", IssueRatio: 0.4, At: at.Add(time.Minute)})

	transitions, err := store.ListTransitions(ctx, 10, 0)
	if err != nil {
		log.Fatal(err)
	}
	for _, t := range transitions {
		fmt.Printf("%s -> %s at %s\n", t.From, t.To, t.At.Format(time.Kitchen))
	}
	// Output:
	// reliable -> rate_limited at 12:01PM
	// unknown -> reliable at 12:00PM
}

// ExampleSQLiteStore_AttemptStats demonstrates summarizing fetch attempts.
func ExampleSQLiteStore_AttemptStats() {
	ctx := context.Background()
	store, _ := stores.Open(ctx, ":memory:")
	defer store.Close()

	for i, outcome := range []string{"rate_limit", "success"} {
		_ = store.RecordAttempt(ctx, &stores.Attempt{
			Path:    "Account.Bank",
			Number:  i + 1,
			Outcome: outcome,
		})
	}

	stats, _ := store.AttemptStats(ctx)
	for _, s := range stats {
		fmt.Printf("%s: %d attempts, %d failed\n", s.Path, s.Attempts, s.Failures)
	}
	// Output: Account.Bank: 2 attempts, 1 failed
}
