// Standalone mock journal for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockjournal
//
// Then in another terminal:
//
//	go run ./cmd/journalwatch tail -c example/config.yaml
//	go run ./cmd/journalwatch send -c example/config.yaml --code demo.hello
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/journalwatch/internal/journaltest"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	every := flag.Duration("every", time.Second, "append an event this often (0 = never)")
	flag.Parse()

	fmt.Printf("Mock journal starting on %s\n", *addr)
	fmt.Printf("  journal: GET  %s\n", journaltest.JournalPath)
	fmt.Printf("  ingress: POST %s\n", journaltest.IngressPath)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	j := journaltest.New()

	if *every > 0 {
		go func() {
			codes := []string{"order.created", "order.paid", "order.shipped"}
			n := 0
			for range time.Tick(*every) {
				n++
				code := codes[rand.Intn(len(codes))]
				j.Append(code, map[string]int{"order": n, "total": rand.Intn(500)})
				slog.Info("event appended", "code", code, "events", j.Len())
			}
		}()
	}

	if err := http.ListenAndServe(*addr, j); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
