package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/jpalmerr/journalwatch/internal/journaltest"
)

var demoCodes = []string{"order.created", "order.paid", "order.shipped"}

// StartMockJournal serves an in-memory journal on addr and appends a random
// order event every few hundred milliseconds. Every tenth read fails with a
// 503 so the watcher's recovery is visible.
func StartMockJournal(addr string) *journaltest.Journal {
	j := journaltest.New()
	j.RetryAfter = "1"

	go func() {
		order := 0
		for range time.Tick(time.Duration(300+rand.Intn(400)) * time.Millisecond) {
			order++
			j.Append(demoCodes[rand.Intn(len(demoCodes))], map[string]any{
				"order": order,
				"total": rand.Intn(500),
			})
			if order%10 == 0 {
				j.FailNext(http.StatusServiceUnavailable)
			}
		}
	}()

	go func() {
		if err := http.ListenAndServe(addr, j); err != nil {
			slog.Error("mock journal error", "error", err)
		}
	}()

	return j
}
