// Package main provides the crawler command-line tool: it searches the DJE
// and saves the text of the matching pages, ready for the extractor tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"djeworker/internal/config"
	"djeworker/internal/crawler"
	"djeworker/internal/logger"
	"djeworker/internal/models"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigPath, "Path to YAML configuration file")
	from := flag.String("from", "", "First filing day (YYYY-MM-DD, default today)")
	to := flag.String("to", "", "Last filing day (YYYY-MM-DD, default -from)")
	output := flag.String("output", "pages", "Directory the page .txt files are written to")
	follow := flag.Int("follow", 1, "Following pages saved after each hit, for records that spill over")
	showUsage := flag.Bool("help", false, "Show usage information")

	flag.Parse()

	if *showUsage {
		printUsage()
		os.Exit(0)
	}

	fmt.Printf("⚙️  Loading configuration from: %s\n", *configFile)

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}

	if cfg.Source.IsLocalFile() {
		log.Fatal("❌ source.kind is 'file'; the crawler only talks to the DJE")
	}

	start, end, err := window(*from, *to)
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("❌ Failed to create %s: %v\n", *output, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	client, err := crawler.NewClient(&cfg.Source, l)
	if err != nil {
		log.Fatalf("❌ Failed to create client: %v\n", err)
	}
	defer client.Close()

	if err := client.Open(ctx); err != nil {
		log.Fatalf("❌ Failed to open DJE session: %v\n", err)
	}

	fmt.Printf("🚀 Searching %s..%s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))

	hits, err := client.Search(ctx, start, end)
	if err != nil {
		log.Fatalf("❌ Search failed: %v\n", err)
	}

	fmt.Printf("🔍 %d hits\n", len(hits))

	saved, failed := savePages(ctx, client.Source(), hits, *follow, *output)

	client.LogAttemptSummary(l)

	fmt.Println("\n----------------------------------------------------------------")
	fmt.Printf("📈 Summary:\n")
	fmt.Printf("  Hits:   %d\n", len(hits))
	fmt.Printf("  Saved:  %d pages to %s\n", saved, *output)
	fmt.Printf("  Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// savePages writes each hit and up to follow following pages once, numbered
// in discovery order so a file source reads them back in sequence.
func savePages(ctx context.Context, source crawler.PageSource, hits []crawler.Hit, follow int, dir string) (int, int) {
	seen := map[string]bool{}
	saved, failed := 0, 0

	for _, hit := range hits {
		loc := hit.Locator

		for i := 0; i <= follow; i++ {
			if ctx.Err() != nil {
				return saved, failed
			}

			if !seen[loc.Key()] {
				seen[loc.Key()] = true

				if err := savePage(ctx, source, loc, filepath.Join(dir, fmt.Sprintf("page_%05d.txt", saved+1))); err != nil {
					if errors.Is(err, crawler.ErrPageAbsent) {
						break
					}

					fmt.Printf("❌ %s: %v\n", loc, err)

					failed++
				} else {
					saved++
				}
			}

			next, ok := source.Advance(loc)
			if !ok {
				break
			}

			loc = next
		}
	}

	return saved, failed
}

func savePage(ctx context.Context, source crawler.PageSource, loc models.Locator, path string) error {
	text, err := source.FetchPage(ctx, loc)
	if err != nil {
		return err
	}

	fmt.Printf("📄 %s -> %s\n", loc, filepath.Base(path))

	return os.WriteFile(path, []byte(text), 0o644)
}

func window(from, to string) (time.Time, time.Time, error) {
	if from == "" {
		today := time.Now()
		start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.Local)

		return start, start, nil
	}

	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
	}

	if to == "" {
		return start, start, nil
	}

	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
	}

	return start, end, nil
}

func printUsage() {
	fmt.Println("Usage: ./bin/crawler [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./bin/crawler -from 2024-11-04 -output pages")
	fmt.Println("  ./bin/extractor -input pages -format json")
}
