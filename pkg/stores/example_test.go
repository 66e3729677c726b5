package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mythos-linux/mythos/pkg/stores"
)

func ExampleOpen() {
	ctx := context.Background()
	store, err := stores.Open(ctx, stores.MemoryPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = store.CreateRun(ctx, &stores.RunRecord{ID: "run-001", Profile: "gaming", Status: "pending", StartedAt: started})
	_ = store.FinishRun(ctx, "run-001", "completed", "", 4, 0, started.Add(time.Minute))

	runs, _ := store.ListRuns(ctx, 10, 0)
	for _, r := range runs {
		fmt.Println(r.ID, r.Profile, r.Status, r.Duration())
	}
	// Output: run-001 gaming completed 1m0s
}
