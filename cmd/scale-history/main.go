// Command scale-history prints logged weight readings from the local
// history database.
//
// Usage:
//
//	go run ./cmd/scale-history [--limit 20]
//	go run ./cmd/scale-history --device AA:BB:CC:DD:EE:FF --since 24h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dstrnad/sencorscale/internal/config"
	"github.com/dstrnad/sencorscale/internal/history"
)

func main() {
	db := flag.String("db", config.DefaultHistoryPath(), "path to the history database")
	device := flag.String("device", "", "only show readings for this address")
	limit := flag.Int("limit", 20, "maximum readings to print")
	since := flag.Duration("since", 24*time.Hour, "with --device, how far back to look")
	flag.Parse()

	if _, err := os.Stat(*db); err != nil {
		log.Fatalf("no history database at %s (is history enabled in the config?)", *db)
	}

	store, err := history.Open(*db)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	defer store.Close()

	var readings []history.Reading
	if *device != "" {
		readings, err = store.Since(*device, time.Now().Add(-*since), *limit)
	} else {
		readings, err = store.Recent(*limit)
	}
	if err != nil {
		log.Fatalf("query: %v", err)
	}

	if len(readings) == 0 {
		fmt.Println("No readings.")
		return
	}

	for _, r := range readings {
		name := r.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%s  %-17s  %-12s  %dg\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Address, name, r.WeightG)
	}
}
